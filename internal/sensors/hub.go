package sensors

import (
	"context"

	"codeberg.org/mutker/atommanctl/internal/gpu"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// HubConfig carries the sensor settings from the configuration file.
type HubConfig struct {
	FanPrefer string
	FanMaxRPM int
	NetIface  string
}

// Hub serves every tile's readings from one set of probes. It is driven by
// the protocol loop only; the label cache is the one structure guarded for
// concurrent use.
type Hub struct {
	fs     afero.Fs
	runner Runner

	system *SystemProbe
	gpu    *GPUProbe
	labels *LabelProbe
	fans   *FanResolver
	net    *NetMeter

	fanPrefer Preference
	fanMaxRPM int
}

// NewHub wires the probes against fs. reader may be nil when NVML is not
// available.
func NewHub(fs afero.Fs, runner Runner, reader gpu.Reader, clock clockwork.Clock, cfg HubConfig) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Hub{
		fs:        fs,
		runner:    runner,
		system:    NewSystemProbe(fs),
		gpu:       &GPUProbe{FS: fs, Runner: runner, Reader: reader},
		labels:    &LabelProbe{FS: fs, Runner: runner, Cache: NewLabelCache(clock)},
		fans:      NewFanResolver(fs, reader, runner),
		net:       NewNetMeter(SysfsLinks{FS: fs}, PsutilCounters{}, clock, cfg.NetIface),
		fanPrefer: ParsePreference(cfg.FanPrefer),
		fanMaxRPM: cfg.FanMaxRPM,
	}
}

func (h *Hub) CPU(ctx context.Context) CPUReading {
	return h.system.CPU(ctx)
}

func (h *Hub) GPU(ctx context.Context) GPUReading {
	return h.gpu.GPU(ctx)
}

func (h *Hub) Memory(ctx context.Context) MemoryReading {
	r := h.system.Memory(ctx)
	if v := h.labels.RAMVendor(ctx); v != "" {
		r.Vendor = Some(v)
	}

	return r
}

func (h *Hub) Disk(ctx context.Context) DiskReading {
	r := h.system.Disk(ctx)
	if l := h.labels.DiskLabel(ctx); l != "" {
		r.Label = Some(l)
	}

	return r
}

// Network samples the interface rates and resolves the fan speed, which
// shares the network tile.
func (h *Hub) Network(ctx context.Context) NetworkReading {
	rx, tx := h.net.Rates(ctx)
	if !rx.Valid || !tx.Valid {
		logger.Debug().Str("iface", h.net.Interface().Or("")).Msg("No network rate this sample")
	}

	return NetworkReading{
		FanRPM: h.fans.Resolve(ctx, h.fanPrefer, h.fanMaxRPM),
		RxKBps: rx,
		TxKBps: tx,
	}
}

func (h *Hub) Volume(ctx context.Context) Reading[int] {
	return Volume(ctx, h.runner)
}

func (h *Hub) Battery(ctx context.Context) Reading[int] {
	return Battery(ctx, h.fs)
}
