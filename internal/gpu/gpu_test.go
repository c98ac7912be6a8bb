package gpu

import (
	"testing"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	name     string
	temp     uint32
	util     uint32
	fans     []uint32
	failFan  map[int]bool
	fanCount Return
	nameRet  Return
}

func (f *fakeDevice) GetName() (string, Return) {
	if f.nameRet != nvml.SUCCESS {
		return "", f.nameRet
	}
	return f.name, nvml.SUCCESS
}

func (f *fakeDevice) GetTemperature(TemperatureSensor) (uint32, Return) {
	return f.temp, nvml.SUCCESS
}

func (f *fakeDevice) GetUtilizationRates() (Utilization, Return) {
	return Utilization{Gpu: f.util, Memory: 10}, nvml.SUCCESS
}

func (f *fakeDevice) GetNumFans() (int, Return) {
	if f.fanCount != nvml.SUCCESS {
		return 0, f.fanCount
	}
	return len(f.fans), nvml.SUCCESS
}

func (f *fakeDevice) GetFanSpeed_v2(fan int) (uint32, Return) {
	if f.failFan[fan] {
		return 0, nvml.ERROR_NOT_SUPPORTED
	}
	return f.fans[fan], nvml.SUCCESS
}

func TestReads(t *testing.T) {
	g := newWithDevice(&fakeDevice{name: "NVIDIA GeForce RTX 4060", temp: 47, util: 12, fans: []uint32{30, 55}})

	name, err := g.Name()
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA GeForce RTX 4060", name)

	temp, err := g.Temperature()
	require.NoError(t, err)
	assert.Equal(t, 47, temp)

	util, err := g.Utilization()
	require.NoError(t, err)
	assert.Equal(t, 12, util)

	duty, err := g.FanDuty()
	require.NoError(t, err)
	assert.Equal(t, 55, duty)
}

func TestFanDutyZeroIsValid(t *testing.T) {
	g := newWithDevice(&fakeDevice{fans: []uint32{0}})

	duty, err := g.FanDuty()
	require.NoError(t, err)
	assert.Equal(t, 0, duty)
}

func TestFanDutySkipsFailingFans(t *testing.T) {
	g := newWithDevice(&fakeDevice{fans: []uint32{80, 40}, failFan: map[int]bool{0: true}})

	duty, err := g.FanDuty()
	require.NoError(t, err)
	assert.Equal(t, 40, duty)
}

func TestFanDutyUnavailable(t *testing.T) {
	g := newWithDevice(&fakeDevice{})
	_, err := g.FanDuty()
	assert.True(t, errors.HasCode(err, ErrFanCountFailed))

	g = newWithDevice(&fakeDevice{fans: []uint32{10}, failFan: map[int]bool{0: true}})
	_, err = g.FanDuty()
	assert.True(t, errors.HasCode(err, ErrGetFanSpeedFailed))

	g = newWithDevice(&fakeDevice{fanCount: nvml.ERROR_NOT_SUPPORTED})
	_, err = g.FanDuty()
	assert.True(t, errors.HasCode(err, ErrFanCountFailed))
}

func TestNameFailure(t *testing.T) {
	g := newWithDevice(&fakeDevice{nameRet: nvml.ERROR_UNKNOWN})

	_, err := g.Name()
	assert.True(t, errors.HasCode(err, ErrNameReadFailed))
}

func TestReadsAfterShutdown(t *testing.T) {
	g := newWithDevice(&fakeDevice{name: "GPU", fans: []uint32{1}})
	require.NoError(t, g.Shutdown())
	require.NoError(t, g.Shutdown())

	_, err := g.Name()
	assert.True(t, errors.HasCode(err, ErrNotInitialized))
	_, err = g.FanDuty()
	assert.True(t, errors.HasCode(err, ErrNotInitialized))
}
