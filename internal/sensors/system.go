package sensors

import (
	"context"
	"fmt"
	"math"
	"path"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/spf13/afero"
)

const (
	// CPUSampleInterval is the window CPU usage is measured over.
	CPUSampleInterval = 80 * time.Millisecond

	hwmonDirGlob = "/sys/class/hwmon/hwmon*"
	maxTempIndex = 8
	rootMount    = "/"
	bytesPerGiB  = 1 << 30
)

var cpufreqPaths = []string{
	"/sys/devices/system/cpu/cpu0/cpufreq/scaling_cur_freq",
	"/sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_cur_freq",
}

// SystemProbe reads CPU, memory and root filesystem figures. The gopsutil
// calls are fields so tests can replace them.
type SystemProbe struct {
	FS afero.Fs

	CPUInfo       func(ctx context.Context) ([]cpu.InfoStat, error)
	CPUPercent    func(ctx context.Context, interval time.Duration, perCPU bool) ([]float64, error)
	VirtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	DiskUsage     func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func NewSystemProbe(fs afero.Fs) *SystemProbe {
	return &SystemProbe{
		FS:            fs,
		CPUInfo:       cpu.InfoWithContext,
		CPUPercent:    cpu.PercentWithContext,
		VirtualMemory: mem.VirtualMemoryWithContext,
		DiskUsage:     disk.UsageWithContext,
	}
}

func (p *SystemProbe) CPU(ctx context.Context) CPUReading {
	var r CPUReading

	info, ok := bounded(ctx, FileTimeout, func(ctx context.Context) ([]cpu.InfoStat, error) {
		return p.CPUInfo(ctx)
	})
	if ok && len(info) > 0 {
		if model := collapseSpace(info[0].ModelName); model != "" {
			r.Model = Some(model)
		}
	}

	r.Temp = p.cpuTemp(ctx)

	pct, ok := bounded(ctx, FileTimeout, func(ctx context.Context) ([]float64, error) {
		return p.CPUPercent(ctx, CPUSampleInterval, false)
	})
	if ok && len(pct) > 0 {
		r.Usage = Some(clampPercent(pct[0]))
	}

	r.FreqKHz = p.cpuFreq(ctx, info)

	return r
}

// cpuTemp returns the first hwmon temperature input, scaled from
// millidegrees when needed.
func (p *SystemProbe) cpuTemp(ctx context.Context) Reading[int] {
	for _, dir := range sortedGlob(p.FS, hwmonDirGlob) {
		for n := range maxTempIndex {
			v, ok := readInt(ctx, p.FS, path.Join(dir, fmt.Sprintf("temp%d_input", n)))
			if !ok {
				continue
			}
			return Some(milliToUnit(v))
		}
	}

	return None[int]()
}

func (p *SystemProbe) cpuFreq(ctx context.Context, info []cpu.InfoStat) Reading[int] {
	for _, f := range cpufreqPaths {
		if v, ok := readInt(ctx, p.FS, f); ok && v >= 0 {
			return Some(v)
		}
	}

	if len(info) > 0 && info[0].Mhz > 0 {
		return Some(int(info[0].Mhz * 1000))
	}

	return None[int]()
}

func (p *SystemProbe) Memory(ctx context.Context) MemoryReading {
	vm, ok := bounded(ctx, FileTimeout, func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return p.VirtualMemory(ctx)
	})
	if !ok || vm == nil || vm.Total == 0 {
		return MemoryReading{}
	}

	used := vm.Total - min(vm.Available, vm.Total)

	return MemoryReading{
		UsedGB:      Some(gibTenths(used)),
		AvailableGB: Some(gibTenths(vm.Available)),
		TotalGB:     Some(gibTenths(vm.Total)),
		Usage:       Some(ratioPercent(used, vm.Total)),
	}
}

func (p *SystemProbe) Disk(ctx context.Context) DiskReading {
	du, ok := bounded(ctx, FileTimeout, func(ctx context.Context) (*disk.UsageStat, error) {
		return p.DiskUsage(ctx, rootMount)
	})
	if !ok || du == nil || du.Total == 0 {
		return DiskReading{}
	}

	used := du.Total - min(du.Free, du.Total)

	return DiskReading{
		UsedGB:  Some(int(math.Round(float64(used) / bytesPerGiB))),
		TotalGB: Some(int(math.Round(float64(du.Total) / bytesPerGiB))),
		Usage:   Some(ratioPercent(used, du.Total)),
	}
}

// milliToUnit scales a hwmon millidegree value; small values are taken as
// already scaled.
func milliToUnit(v int) int {
	if v > 1000 {
		return v / 1000
	}
	return v
}

func gibTenths(b uint64) float64 {
	return math.Round(float64(b)/bytesPerGiB*10) / 10
}

func ratioPercent(part, total uint64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

func clampPercent(v float64) int {
	return int(math.Round(max(0, min(100, v))))
}
