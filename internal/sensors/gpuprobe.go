package sensors

import (
	"context"
	"path"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/atommanctl/internal/gpu"
	"github.com/spf13/afero"
)

const (
	drmDevice     = "/sys/class/drm/card0/device"
	defaultAMDGPU = "AMD Radeon"
)

var (
	gpuNoiseRe = regexp.MustCompile(`(?i)Intel\(R\)\s*|\(R\)|\(TM\)|NVIDIA Corporation|Advanced Micro Devices,? Inc\.?|\[[0-9a-f]{4}\]`)
	rocmTempRe = regexp.MustCompile(`(?i)temperature[^\n]*:\s*(\d+(?:\.\d+)?)`)
	rocmUseRe  = regexp.MustCompile(`(?i)gpu use[^\n]*:\s*(\d+)`)
	rocmNameRe = regexp.MustCompile(`(?i)card series[^\n]*:\s*([^\n]+)`)
	lspciVGARe = regexp.MustCompile(`"VGA compatible controller \[0300\]"\s+"[^"]*"\s+"([^"]+)"`)
)

// GPUProbe reads the GPU tile values from the first source that answers:
// NVML, nvidia-smi, rocm-smi, then the DRM sysfs device.
type GPUProbe struct {
	FS     afero.Fs
	Runner Runner
	Reader gpu.Reader
}

func (p *GPUProbe) GPU(ctx context.Context) GPUReading {
	sources := []func(context.Context) (GPUReading, bool){
		p.fromNVML,
		p.fromNvidiaSMI,
		p.fromROCm,
		p.fromDRM,
	}

	for _, src := range sources {
		if r, ok := src(ctx); ok {
			return r
		}
	}

	return GPUReading{}
}

func (p *GPUProbe) fromNVML(context.Context) (GPUReading, bool) {
	if p.Reader == nil {
		return GPUReading{}, false
	}

	name, err := p.Reader.Name()
	if err != nil {
		return GPUReading{}, false
	}

	r := GPUReading{Name: nameReading(name)}
	if t, err := p.Reader.Temperature(); err == nil {
		r.Temp = Some(t)
	}
	if u, err := p.Reader.Utilization(); err == nil {
		r.Usage = Some(u)
	}

	return r, true
}

func (p *GPUProbe) fromNvidiaSMI(ctx context.Context) (GPUReading, bool) {
	out, ok := p.Runner.Run(ctx, "nvidia-smi",
		"--query-gpu=name,temperature.gpu,utilization.gpu", "--format=csv,noheader,nounits")
	if !ok {
		return GPUReading{}, false
	}

	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return GPUReading{}, false
	}

	temp, err1 := strconv.Atoi(strings.TrimSpace(fields[1]))
	util, err2 := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err1 != nil || err2 != nil {
		return GPUReading{}, false
	}

	return GPUReading{
		Name:  nameReading(fields[0]),
		Temp:  Some(temp),
		Usage: Some(util),
	}, true
}

func (p *GPUProbe) fromROCm(ctx context.Context) (GPUReading, bool) {
	out, ok := p.Runner.Run(ctx, "rocm-smi", "--showtemp", "--showuse", "--showproductname")
	if !ok || strings.TrimSpace(out) == "" {
		return GPUReading{}, false
	}

	r := GPUReading{Name: Some(defaultAMDGPU)}
	if m := rocmNameRe.FindStringSubmatch(out); m != nil {
		if n := nameReading(m[1]); n.Valid {
			r.Name = n
		}
	}
	if m := rocmTempRe.FindStringSubmatch(out); m != nil {
		if t, err := strconv.ParseFloat(m[1], 64); err == nil {
			r.Temp = Some(int(t))
		}
	}
	if m := rocmUseRe.FindStringSubmatch(out); m != nil {
		if u, err := strconv.Atoi(m[1]); err == nil {
			r.Usage = Some(u)
		}
	}

	return r, true
}

func (p *GPUProbe) fromDRM(ctx context.Context) (GPUReading, bool) {
	name := ""
	for _, f := range []string{"product_name", "name"} {
		if v, ok := readString(ctx, p.FS, path.Join(drmDevice, f)); ok && v != "" {
			name = v
			break
		}
	}

	if name == "" {
		if out, ok := p.Runner.Run(ctx, "lspci", "-mmnn"); ok {
			if m := lspciVGARe.FindStringSubmatch(out); m != nil {
				name = m[1]
			}
		}
	}

	n := nameReading(name)
	if !n.Valid {
		return GPUReading{}, false
	}

	r := GPUReading{Name: n}
	for _, f := range sortedGlob(p.FS, path.Join(drmDevice, "hwmon/hwmon*/temp*_input")) {
		if v, ok := readInt(ctx, p.FS, f); ok {
			r.Temp = Some(v / 1000)
			break
		}
	}

	return r, true
}

// CleanGPUName strips vendor and trademark noise from a GPU name.
func CleanGPUName(name string) string {
	return collapseSpace(gpuNoiseRe.ReplaceAllString(name, ""))
}

func nameReading(name string) Reading[string] {
	if n := CleanGPUName(name); n != "" {
		return Some(n)
	}
	return None[string]()
}
