package sensors

import (
	"context"
	"path"
	"regexp"
	"strconv"

	"github.com/spf13/afero"
)

var volumeRe = regexp.MustCompile(`(\d+)%`)

// Volume reads the default sink volume percentage from pactl.
func Volume(ctx context.Context, runner Runner) Reading[int] {
	out, ok := runner.Run(ctx, "pactl", "get-sink-volume", "@DEFAULT_SINK@")
	if !ok {
		return None[int]()
	}

	m := volumeRe.FindStringSubmatch(out)
	if m == nil {
		return None[int]()
	}

	v, err := strconv.Atoi(m[1])
	if err != nil {
		return None[int]()
	}

	return Some(v)
}

// Battery reads the capacity of the first battery in name order.
func Battery(ctx context.Context, fs afero.Fs) Reading[int] {
	for _, dir := range sortedGlob(fs, "/sys/class/power_supply/BAT*") {
		if v, ok := readInt(ctx, fs, path.Join(dir, "capacity")); ok {
			return Some(v)
		}
	}

	return None[int]()
}
