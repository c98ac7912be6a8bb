package sensors

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/atommanctl/internal/logger"
	"github.com/jonboulle/clockwork"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// minSampleInterval keeps a zero clock delta from dividing by zero.
const minSampleInterval = time.Millisecond

// CounterReader returns the cumulative receive and transmit byte counters of
// one interface.
type CounterReader interface {
	Counters(ctx context.Context, iface string) (rx, tx uint64, ok bool)
}

// PsutilCounters reads per-interface counters through gopsutil.
type PsutilCounters struct{}

func (PsutilCounters) Counters(ctx context.Context, iface string) (uint64, uint64, bool) {
	stats, ok := bounded(ctx, FileTimeout, func(ctx context.Context) ([]psnet.IOCountersStat, error) {
		return psnet.IOCountersWithContext(ctx, true)
	})
	if !ok {
		return 0, 0, false
	}

	for _, s := range stats {
		if s.Name == iface {
			return s.BytesRecv, s.BytesSent, true
		}
	}

	return 0, 0, false
}

// NetMeter tracks one interface and turns successive counter samples into
// KiB/s rates. Rates are only ever computed from two samples of the same
// interface; acquiring an interface always starts with a fresh baseline.
type NetMeter struct {
	links    LinkInspector
	counters CounterReader
	clock    clockwork.Clock
	pinned   string

	iface  string
	rx0    uint64
	tx0    uint64
	t0     time.Time
	primed bool
}

// NewNetMeter creates a meter. A non-empty pinned interface bypasses the
// picker entirely.
func NewNetMeter(links LinkInspector, counters CounterReader, clock clockwork.Clock, pinned string) *NetMeter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &NetMeter{
		links:    links,
		counters: counters,
		clock:    clock,
		pinned:   pinned,
	}
}

// Interface returns the interface currently metered.
func (m *NetMeter) Interface() Reading[string] {
	if m.iface == "" {
		return None[string]()
	}
	return Some(m.iface)
}

// Rates samples the counters and returns receive and transmit rates in
// KiB/s. Both are absent on a baseline sample or when no interface is
// usable.
func (m *NetMeter) Rates(ctx context.Context) (Reading[float64], Reading[float64]) {
	m.selectInterface(ctx)
	if m.iface == "" {
		return None[float64](), None[float64]()
	}

	rx, tx, ok := m.counters.Counters(ctx, m.iface)
	if !ok {
		logger.Debug().Str("iface", m.iface).Msg("Interface counters unavailable")
		m.primed = false
		if m.pinned == "" {
			m.iface = ""
		}
		return None[float64](), None[float64]()
	}

	now := m.clock.Now()
	if !m.primed {
		m.rx0, m.tx0, m.t0, m.primed = rx, tx, now, true
		return None[float64](), None[float64]()
	}

	dt := max(now.Sub(m.t0), minSampleInterval).Seconds()
	rxRate := rate(m.rx0, rx, dt)
	txRate := rate(m.tx0, tx, dt)
	m.rx0, m.tx0, m.t0 = rx, tx, now

	return Some(rxRate), Some(txRate)
}

func (m *NetMeter) selectInterface(ctx context.Context) {
	if m.pinned != "" {
		if m.iface != m.pinned {
			m.acquire(m.pinned)
		}
		return
	}

	if m.iface == "" {
		if name, ok := Pick(ctx, m.links); ok {
			m.acquire(name)
		}
		return
	}

	if !m.links.Inspect(ctx, m.iface).Stale() {
		return
	}

	if name, ok := Pick(ctx, m.links); ok && name != m.iface {
		logger.Info().Str("from", m.iface).Str("to", name).Msg("Switching network interface")
		m.acquire(name)
	}
}

func (m *NetMeter) acquire(name string) {
	m.iface = name
	m.primed = false
	logger.Debug().Str("iface", name).Msg("Metering network interface")
}

// rate is the KiB/s change between two counter values, floored at zero.
func rate(before, after uint64, seconds float64) float64 {
	if after < before {
		return 0
	}
	return float64(after-before) / seconds / 1024
}

// FormatRate renders a KiB/s rate with one decimal and a K, M or G unit.
func FormatRate(kbps float64) string {
	if kbps < 1024 {
		return fmt.Sprintf("%.1f K/s", kbps)
	}

	mbps := kbps / 1024
	if mbps < 1024 {
		return fmt.Sprintf("%.1f M/s", mbps)
	}

	return fmt.Sprintf("%.1f G/s", mbps/1024)
}
