package tiles

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/atommanctl/internal/protocol"
	"codeberg.org/mutker/atommanctl/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSensors struct {
	cpu     sensors.CPUReading
	gpu     sensors.GPUReading
	memory  sensors.MemoryReading
	disk    sensors.DiskReading
	network sensors.NetworkReading
	volume  sensors.Reading[int]
	battery sensors.Reading[int]
}

func (s stubSensors) CPU(context.Context) sensors.CPUReading         { return s.cpu }
func (s stubSensors) GPU(context.Context) sensors.GPUReading         { return s.gpu }
func (s stubSensors) Memory(context.Context) sensors.MemoryReading   { return s.memory }
func (s stubSensors) Disk(context.Context) sensors.DiskReading       { return s.disk }
func (s stubSensors) Network(context.Context) sensors.NetworkReading { return s.network }
func (s stubSensors) Volume(context.Context) sensors.Reading[int]    { return s.volume }
func (s stubSensors) Battery(context.Context) sensors.Reading[int]   { return s.battery }

var fullSensors = stubSensors{
	cpu: sensors.CPUReading{
		Model:   sensors.Some("AMD Ryzen 7 7840HS"),
		Temp:    sensors.Some(55),
		Usage:   sensors.Some(12),
		FreqKHz: sensors.Some(3800000),
	},
	gpu: sensors.GPUReading{
		Name:  sensors.Some("Radeon 780M"),
		Temp:  sensors.Some(47),
		Usage: sensors.Some(3),
	},
	memory: sensors.MemoryReading{
		Vendor:      sensors.Some("Samsung"),
		UsedGB:      sensors.Some(12.4),
		AvailableGB: sensors.Some(19.6),
		TotalGB:     sensors.Some(32.0),
		Usage:       sensors.Some(39),
	},
	disk: sensors.DiskReading{
		Label:   sensors.Some("WD_BLACK SN850X"),
		UsedGB:  sensors.Some(412),
		TotalGB: sensors.Some(1863),
		Usage:   sensors.Some(22),
	},
	network: sensors.NetworkReading{
		FanRPM: 2000,
		RxKBps: sensors.Some(512.0),
		TxKBps: sensors.Some(2048.0),
	},
	volume:  sensors.Some(65),
	battery: sensors.Some(87),
}

// 2025-03-02 is a Sunday.
var sunday = time.Date(2025, 3, 2, 9, 5, 7, 0, time.UTC)

func TestPayloads(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		tile Tile
		want string
	}{
		{CPU, "{CPU:AMD Ryzen 7 7840HS;Tempr:55;Useage:12;Freq:3800000;Tempr1:55;}"},
		{GPU, "{GPU:Radeon 780M;Tempr:47;Useage:3}"},
		{Memory, "{Memory:Memory (Samsung);Used:12.4;Available:19.6;Total:32.0;Useage:39}"},
		{Disk, "{DiskName:WD_BLACK SN850X;Tempr:33;UsageSpace:412;AllSpace:1863;Usage:22}"},
		{Date, "{Date:2025/03/02;Time:09:05:07;Week:0;Weather:;TemprLo:,TemprHi:,Zone:,Desc:}"},
		{Network, "{SPEED:2000;NETWORK:512.0 K/s,2.0 M/s}"},
		{Volume, "{VOLUME:65}"},
		{Battery, "{Battery:87}"},
	}

	for _, tt := range tests {
		t.Run(tt.tile.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tile.Payload(ctx, fullSensors, sunday))
		})
	}
}

func TestPayloadSentinels(t *testing.T) {
	ctx := context.Background()
	empty := stubSensors{network: sensors.NetworkReading{FanRPM: sensors.UnknownRPM}}
	saturday := time.Date(2025, 3, 8, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		tile Tile
		want string
	}{
		{CPU, "{CPU:Linux CPU;Tempr:0;Useage:0;Freq:0;Tempr1:0;}"},
		{GPU, "{GPU:GPU;Tempr:0;Useage:0}"},
		{Memory, "{Memory:Memory;Used:0.0;Available:0.0;Total:0.0;Useage:0}"},
		{Disk, "{DiskName:Disk;Tempr:33;UsageSpace:0;AllSpace:0;Usage:0}"},
		{Date, "{Date:2025/03/08;Time:23:59:59;Week:6;Weather:;TemprLo:,TemprHi:,Zone:,Desc:}"},
		{Network, "{SPEED:-1;NETWORK:N/A,N/A}"},
		{Volume, "{VOLUME:-1}"},
		{Battery, "{Battery:177}"},
	}

	for _, tt := range tests {
		t.Run(tt.tile.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tile.Payload(ctx, empty, saturday))
		})
	}
}

func TestNetworkPayloadNeedsBothRates(t *testing.T) {
	s := stubSensors{network: sensors.NetworkReading{FanRPM: 0, RxKBps: sensors.Some(1.0)}}
	assert.Equal(t, "{SPEED:0;NETWORK:N/A,N/A}", Network.Payload(context.Background(), s, sunday))
}

func TestSequenceCodes(t *testing.T) {
	want := map[byte]byte{
		protocol.TileCPU:     '2',
		protocol.TileGPU:     '3',
		protocol.TileMemory:  '4',
		protocol.TileDisk:    '5',
		protocol.TileDate:    '6',
		protocol.TileNetwork: '7',
		protocol.TileVolume:  '9',
		protocol.TileBattery: '2',
	}

	rot := FullRotation()
	require.Len(t, rot, 8)
	for _, tile := range rot {
		assert.Equal(t, want[tile.ID], tile.Seq, tile.Name)
	}
}

func TestRotations(t *testing.T) {
	ids := func(rot []Tile) []byte {
		out := make([]byte, len(rot))
		for i, t := range rot {
			out[i] = t.ID
		}
		return out
	}

	assert.Equal(t, []byte{0x53, 0x36, 0x49}, ids(UnlockRotation()))
	assert.Equal(t, []byte{0x53, 0x36, 0x49, 0x4F, 0x6B, 0x27, 0x10, 0x1A}, ids(FullRotation()))
}
