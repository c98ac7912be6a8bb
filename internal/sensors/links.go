package sensors

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/spf13/afero"
)

const (
	sysClassNet  = "/sys/class/net"
	procNetRoute = "/proc/net/route"
	loopback     = "lo"
)

// LinkInfo is the state of one network interface as seen by the picker.
type LinkInfo struct {
	Name     string
	Up       bool
	Carrier  bool
	Wireless bool
}

// Score ranks an interface: 2 when up with carrier, 1 when only up, 0 when
// down, plus 1 for a wired link.
func (l LinkInfo) Score() int {
	score := 0
	switch {
	case l.Up && l.Carrier:
		score = 2
	case l.Up:
		score = 1
	}

	if !l.Wireless {
		score++
	}

	return score
}

// Stale reports whether the interface should be re-picked.
func (l LinkInfo) Stale() bool {
	return !l.Up || (l.Wireless && !l.Carrier)
}

// LinkInspector enumerates interfaces and reports their state.
type LinkInspector interface {
	// DefaultRouteInterfaces returns interfaces carrying a default route, in
	// routing table order without duplicates.
	DefaultRouteInterfaces(ctx context.Context) []string
	// Interfaces returns every interface except loopback, sorted by name.
	Interfaces(ctx context.Context) []string
	Inspect(ctx context.Context, name string) LinkInfo
}

// SysfsLinks reads interface state from /sys/class/net and default routes
// from /proc/net/route.
type SysfsLinks struct {
	FS afero.Fs
}

func (s SysfsLinks) DefaultRouteInterfaces(ctx context.Context) []string {
	data, ok := bounded(ctx, FileTimeout, func(_ context.Context) ([]byte, error) {
		return afero.ReadFile(s.FS, procNetRoute)
	})
	if !ok {
		return nil
	}

	return parseDefaultRoutes(data)
}

func parseDefaultRoutes(data []byte) []string {
	var names []string
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 8 || f[0] == "Iface" {
			continue
		}
		if f[1] != "00000000" || f[7] != "00000000" {
			continue
		}
		if !seen[f[0]] {
			seen[f[0]] = true
			names = append(names, f[0])
		}
	}

	return names
}

func (s SysfsLinks) Interfaces(ctx context.Context) []string {
	names, ok := bounded(ctx, FileTimeout, func(_ context.Context) ([]string, error) {
		entries, err := afero.ReadDir(s.FS, sysClassNet)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Name() != loopback {
				out = append(out, e.Name())
			}
		}
		return out, nil
	})
	if !ok {
		return nil
	}

	return names
}

func (s SysfsLinks) Inspect(ctx context.Context, name string) LinkInfo {
	dir := path.Join(sysClassNet, name)

	info := LinkInfo{Name: name}
	if v, ok := readString(ctx, s.FS, path.Join(dir, "operstate")); ok {
		info.Up = v == "up"
	}
	if v, ok := readString(ctx, s.FS, path.Join(dir, "carrier")); ok {
		info.Carrier = v == "1"
	}
	if ok, err := afero.DirExists(s.FS, path.Join(dir, "wireless")); err == nil {
		info.Wireless = ok
	}

	return info
}

// Pick chooses the interface to meter. Default-route interfaces are scored
// first; if none scores above zero every non-loopback interface is scored
// in name order, and failing that the first of them is returned. Ties keep
// the earlier candidate.
func Pick(ctx context.Context, links LinkInspector) (string, bool) {
	if name, ok := best(ctx, links, links.DefaultRouteInterfaces(ctx)); ok {
		return name, true
	}

	all := links.Interfaces(ctx)
	if name, ok := best(ctx, links, all); ok {
		return name, true
	}

	if len(all) > 0 {
		return all[0], true
	}

	return "", false
}

func best(ctx context.Context, links LinkInspector, names []string) (string, bool) {
	pick, top := "", 0
	for _, name := range names {
		if score := links.Inspect(ctx, name).Score(); score > top {
			pick, top = name, score
		}
	}

	return pick, top > 0
}
