// Package tiles defines the panel's display tiles: their identifiers, their
// fixed steady-state sequence codes and the payload text each one sends.
package tiles

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/atommanctl/internal/protocol"
	"codeberg.org/mutker/atommanctl/internal/sensors"
)

// Sentinel values the panel understands as "not available".
const (
	UnknownVolume  = -1
	NoBattery      = 177
	UnavailableNet = "N/A"

	defaultCPUName = "Linux CPU"
	defaultGPUName = "GPU"
	memoryLabel    = "Memory"
	diskLabel      = "Disk"
	diskTemp       = 33
)

// Sensors supplies the readings behind the tile payloads.
type Sensors interface {
	CPU(ctx context.Context) sensors.CPUReading
	GPU(ctx context.Context) sensors.GPUReading
	Memory(ctx context.Context) sensors.MemoryReading
	Disk(ctx context.Context) sensors.DiskReading
	Network(ctx context.Context) sensors.NetworkReading
	Volume(ctx context.Context) sensors.Reading[int]
	Battery(ctx context.Context) sensors.Reading[int]
}

type renderFunc func(ctx context.Context, s Sensors, now time.Time) string

// Tile is one display region on the panel.
type Tile struct {
	ID     byte
	Seq    byte
	Name   string
	render renderFunc
}

// Payload renders the tile's text block from current readings.
func (t Tile) Payload(ctx context.Context, s Sensors, now time.Time) string {
	return t.render(ctx, s, now)
}

var (
	CPU     = Tile{ID: protocol.TileCPU, Seq: '2', Name: "CPU", render: cpuPayload}
	GPU     = Tile{ID: protocol.TileGPU, Seq: '3', Name: "GPU", render: gpuPayload}
	Memory  = Tile{ID: protocol.TileMemory, Seq: '4', Name: "MEM", render: memoryPayload}
	Disk    = Tile{ID: protocol.TileDisk, Seq: '5', Name: "DSK", render: diskPayload}
	Date    = Tile{ID: protocol.TileDate, Seq: '6', Name: "DAT", render: datePayload}
	Network = Tile{ID: protocol.TileNetwork, Seq: '7', Name: "NET", render: networkPayload}
	Volume  = Tile{ID: protocol.TileVolume, Seq: '9', Name: "VOL", render: volumePayload}
	Battery = Tile{ID: protocol.TileBattery, Seq: '2', Name: "BAT", render: batteryPayload}
)

// UnlockRotation is served round-robin during activation.
func UnlockRotation() []Tile {
	return []Tile{CPU, GPU, Memory}
}

// FullRotation is served round-robin in steady state.
func FullRotation() []Tile {
	return []Tile{CPU, GPU, Memory, Disk, Date, Network, Volume, Battery}
}

func cpuPayload(ctx context.Context, s Sensors, _ time.Time) string {
	r := s.CPU(ctx)
	temp := r.Temp.Or(0)

	return fmt.Sprintf("{CPU:%s;Tempr:%d;Useage:%d;Freq:%d;Tempr1:%d;}",
		r.Model.Or(defaultCPUName), temp, r.Usage.Or(0), r.FreqKHz.Or(0), temp)
}

func gpuPayload(ctx context.Context, s Sensors, _ time.Time) string {
	r := s.GPU(ctx)

	return fmt.Sprintf("{GPU:%s;Tempr:%d;Useage:%d}",
		r.Name.Or(defaultGPUName), r.Temp.Or(0), r.Usage.Or(0))
}

func memoryPayload(ctx context.Context, s Sensors, _ time.Time) string {
	r := s.Memory(ctx)

	label := memoryLabel
	if v, ok := r.Vendor.Get(); ok {
		label = fmt.Sprintf("%s (%s)", memoryLabel, v)
	}

	return fmt.Sprintf("{Memory:%s;Used:%.1f;Available:%.1f;Total:%.1f;Useage:%d}",
		label, r.UsedGB.Or(0), r.AvailableGB.Or(0), r.TotalGB.Or(0), r.Usage.Or(0))
}

func diskPayload(ctx context.Context, s Sensors, _ time.Time) string {
	r := s.Disk(ctx)

	return fmt.Sprintf("{DiskName:%s;Tempr:%d;UsageSpace:%d;AllSpace:%d;Usage:%d}",
		r.Label.Or(diskLabel), diskTemp, r.UsedGB.Or(0), r.TotalGB.Or(0), r.Usage.Or(0))
}

// datePayload renders the clock tile; Week counts from Sunday=0, and the
// weather fields are sent empty.
func datePayload(_ context.Context, _ Sensors, now time.Time) string {
	return fmt.Sprintf("{Date:%04d/%02d/%02d;Time:%02d:%02d:%02d;Week:%d;Weather:;TemprLo:,TemprHi:,Zone:,Desc:}",
		now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute(), now.Second(), int(now.Weekday()))
}

func networkPayload(ctx context.Context, s Sensors, _ time.Time) string {
	r := s.Network(ctx)

	rx, rxOK := r.RxKBps.Get()
	tx, txOK := r.TxKBps.Get()
	if !rxOK || !txOK {
		return fmt.Sprintf("{SPEED:%d;NETWORK:%s,%s}", r.FanRPM, UnavailableNet, UnavailableNet)
	}

	return fmt.Sprintf("{SPEED:%d;NETWORK:%s,%s}", r.FanRPM, sensors.FormatRate(rx), sensors.FormatRate(tx))
}

func volumePayload(ctx context.Context, s Sensors, _ time.Time) string {
	return fmt.Sprintf("{VOLUME:%d}", s.Volume(ctx).Or(UnknownVolume))
}

func batteryPayload(ctx context.Context, s Sensors, _ time.Time) string {
	return fmt.Sprintf("{Battery:%d}", s.Battery(ctx).Or(NoBattery))
}
