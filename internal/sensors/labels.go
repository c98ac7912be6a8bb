package sensors

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

var (
	manufacturerRe = regexp.MustCompile(`(?mi)^\s*manufacturer:\s*(.+)$`)
	partitionRe    = regexp.MustCompile(`\d+$`)
	nvmePartRe     = regexp.MustCompile(`p\d+$`)
)

// placeholderVendors are firmware defaults that carry no information.
var placeholderVendors = map[string]bool{
	"undefined":              true,
	"not specified":          true,
	"unknown":                true,
	"to be filled by o.e.m.": true,
}

var vendorAliases = []struct {
	match string
	name  string
}{
	{"micron", "Micron"},
	{"samsung", "Samsung"},
	{"hynix", "SK hynix"},
	{"kingston", "Kingston"},
	{"crucial", "Crucial"},
}

// LabelProbe looks up vendor labels for the memory and disk tiles. Results
// are held in the shared LabelCache.
type LabelProbe struct {
	FS     afero.Fs
	Runner Runner
	Cache  *LabelCache
}

// RAMVendor returns the memory vendor, or "" when it cannot be determined.
func (p *LabelProbe) RAMVendor(ctx context.Context) string {
	return p.Cache.GetOrCompute(cacheKeyRAM, LabelTTL, func() string {
		return p.lookupRAMVendor(ctx)
	})
}

// DiskLabel returns the model of the system disk, or "".
func (p *LabelProbe) DiskLabel(ctx context.Context) string {
	return p.Cache.GetOrCompute(cacheKeyDisk, LabelTTL, func() string {
		return p.lookupDiskLabel(ctx)
	})
}

func (p *LabelProbe) lookupRAMVendor(ctx context.Context) string {
	out, ok := p.Runner.Run(ctx, "dmidecode", "-t", "memory")
	if !ok {
		out, _ = p.Runner.Run(ctx, "sudo", "-n", "dmidecode", "-t", "memory")
	}

	vendor := firstManufacturer(out)
	if vendor == "" {
		out, _ = p.Runner.Run(ctx, "lshw", "-class", "memory")
		vendor = firstManufacturer(out)
	}

	return normalizeVendor(vendor)
}

func firstManufacturer(out string) string {
	for _, m := range manufacturerRe.FindAllStringSubmatch(out, -1) {
		v := strings.TrimSpace(m[1])
		if v != "" && !placeholderVendors[strings.ToLower(v)] {
			return v
		}
	}

	return ""
}

func normalizeVendor(v string) string {
	lower := strings.ToLower(v)
	for _, a := range vendorAliases {
		if strings.Contains(lower, a.match) {
			return a.name
		}
	}

	return collapseSpace(v)
}

func (p *LabelProbe) lookupDiskLabel(ctx context.Context) string {
	for _, dir := range sortedGlob(p.FS, "/sys/class/nvme/nvme*") {
		if model, ok := readString(ctx, p.FS, path.Join(dir, "model")); ok && model != "" {
			return collapseSpace(model)
		}
	}

	out, ok := p.Runner.Run(ctx, "lsblk", "-dno", "NAME,MODEL,VENDOR")
	if !ok {
		return ""
	}

	root := ""
	if src, ok := p.Runner.Run(ctx, "findmnt", "-nro", "SOURCE", "/"); ok {
		root = rootDevice(src)
	}

	first := ""
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		label := strings.Join(fields[1:], " ")
		if root != "" && fields[0] == root {
			return label
		}
		if first == "" {
			first = label
		}
	}

	return first
}

// rootDevice maps a mount source like /dev/nvme0n1p2 to its disk name.
func rootDevice(src string) string {
	dev := strings.TrimPrefix(strings.TrimSpace(src), "/dev/")
	if dev == "" {
		return ""
	}
	dev = path.Base(dev)

	// nvme0n1p2 and mmcblk0p1 name partitions with a "p" suffix.
	if strings.HasPrefix(dev, "nvme") || strings.HasPrefix(dev, "mmcblk") {
		return nvmePartRe.ReplaceAllString(dev, "")
	}

	return partitionRe.ReplaceAllString(dev, "")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
