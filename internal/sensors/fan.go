package sensors

import (
	"context"
	"math"
	"strconv"
	"strings"

	"codeberg.org/mutker/atommanctl/internal/gpu"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"github.com/spf13/afero"
)

// UnknownRPM is reported when no fan source yields a value.
const UnknownRPM = -1

const hwmonFanGlob = "/sys/class/hwmon/hwmon*/fan*_input"

// Preference selects which fan source is tried first.
type Preference string

const (
	PreferAuto   Preference = "auto"
	PreferHwmon  Preference = "hwmon"
	PreferNvidia Preference = "nvidia"
)

// ParsePreference maps a configuration value to a Preference. Unknown
// values fall back to auto.
func ParsePreference(s string) Preference {
	switch Preference(strings.ToLower(strings.TrimSpace(s))) {
	case PreferHwmon:
		return PreferHwmon
	case PreferNvidia:
		return PreferNvidia
	default:
		return PreferAuto
	}
}

// RPMSource reports a fan speed in RPM, or ok=false when it has no value.
type RPMSource interface {
	RPM(ctx context.Context) (int, bool)
}

// DutySource reports a fan duty cycle in percent.
type DutySource interface {
	Duty(ctx context.Context) (float64, bool)
}

// HwmonFans scans every hardware monitor fan input and reports the highest
// nonzero reading.
type HwmonFans struct {
	FS afero.Fs
}

func (h HwmonFans) RPM(ctx context.Context) (int, bool) {
	paths, err := afero.Glob(h.FS, hwmonFanGlob)
	if err != nil || len(paths) == 0 {
		return 0, false
	}

	best := 0
	for _, p := range paths {
		if v, ok := readInt(ctx, h.FS, p); ok && v > best {
			best = v
		}
	}

	if best == 0 {
		return 0, false
	}

	return best, true
}

// NVMLDuty reads fan duty through NVML.
type NVMLDuty struct {
	Reader gpu.Reader
}

func (n NVMLDuty) Duty(context.Context) (float64, bool) {
	if n.Reader == nil {
		return 0, false
	}

	pct, err := n.Reader.FanDuty()
	if err != nil {
		logger.Debug().Err(err).Msg("NVML fan duty unavailable")
		return 0, false
	}

	return float64(pct), true
}

// SMIDuty reads fan duty from nvidia-smi.
type SMIDuty struct {
	Runner Runner
}

func (s SMIDuty) Duty(ctx context.Context) (float64, bool) {
	out, ok := s.Runner.Run(ctx, "nvidia-smi", "--query-gpu=fan.speed", "--format=csv,noheader,nounits")
	if !ok {
		return 0, false
	}

	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	pct, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, false
	}

	return pct, true
}

// DutyChain returns the first duty reading any of its sources produces.
type DutyChain []DutySource

func (c DutyChain) Duty(ctx context.Context) (float64, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if pct, ok := src.Duty(ctx); ok {
			return pct, true
		}
	}

	return 0, false
}

// DutyToRPM converts a duty percentage to RPM against maxRPM. Zero percent
// is a valid zero RPM.
func DutyToRPM(pct float64, maxRPM int) int {
	return int(math.Round(pct / 100 * float64(max(1, maxRPM))))
}

// FanResolver picks the fan speed from hwmon and the NVIDIA duty chain
// according to a preference, falling back to the other source on absence.
type FanResolver struct {
	Hwmon  RPMSource
	Nvidia DutySource
}

func NewFanResolver(fs afero.Fs, reader gpu.Reader, runner Runner) *FanResolver {
	chain := DutyChain{}
	if reader != nil {
		chain = append(chain, NVMLDuty{Reader: reader})
	}
	chain = append(chain, SMIDuty{Runner: runner})

	return &FanResolver{
		Hwmon:  HwmonFans{FS: fs},
		Nvidia: chain,
	}
}

// Resolve returns the fan speed in RPM, or UnknownRPM.
func (r *FanResolver) Resolve(ctx context.Context, pref Preference, maxRPM int) int {
	hwmon := func() (int, bool) {
		if r.Hwmon == nil {
			return 0, false
		}
		return r.Hwmon.RPM(ctx)
	}
	nvidia := func() (int, bool) {
		if r.Nvidia == nil {
			return 0, false
		}
		pct, ok := r.Nvidia.Duty(ctx)
		if !ok {
			return 0, false
		}
		return DutyToRPM(pct, maxRPM), true
	}

	order := []func() (int, bool){hwmon, nvidia}
	if pref == PreferNvidia {
		order = []func() (int, bool){nvidia, hwmon}
	}

	for _, src := range order {
		if v, ok := src(); ok {
			return v
		}
	}

	return UnknownRPM
}
