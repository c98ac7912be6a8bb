package sensors

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

type fixedRPM struct {
	v  int
	ok bool
}

func (f fixedRPM) RPM(context.Context) (int, bool) { return f.v, f.ok }

type fixedDuty struct {
	pct float64
	ok  bool
}

func (f fixedDuty) Duty(context.Context) (float64, bool) { return f.pct, f.ok }

type fakeGPU struct {
	name  string
	temp  int
	usage int
	duty  int
	err   error
}

func (g fakeGPU) Name() (string, error)     { return g.name, g.err }
func (g fakeGPU) Temperature() (int, error) { return g.temp, g.err }
func (g fakeGPU) Utilization() (int, error) { return g.usage, g.err }
func (g fakeGPU) FanDuty() (int, error)     { return g.duty, g.err }

func TestFanResolver(t *testing.T) {
	none := fixedRPM{}
	noDuty := fixedDuty{}

	tests := []struct {
		name   string
		hwmon  RPMSource
		nvidia DutySource
		pref   Preference
		maxRPM int
		want   int
	}{
		{"auto prefers hwmon", fixedRPM{1800, true}, fixedDuty{50, true}, PreferAuto, 4000, 1800},
		{"auto falls back to nvidia", none, fixedDuty{50, true}, PreferAuto, 4000, 2000},
		{"both absent", none, noDuty, PreferAuto, 4000, UnknownRPM},
		{"hwmon preference falls back", none, fixedDuty{50, true}, PreferHwmon, 4000, 2000},
		{"nvidia preference first", fixedRPM{1800, true}, fixedDuty{25, true}, PreferNvidia, 4000, 1000},
		{"nvidia preference falls back", fixedRPM{1800, true}, noDuty, PreferNvidia, 4000, 1800},
		{"zero duty is a reading", none, fixedDuty{0, true}, PreferAuto, 4000, 0},
		{"rounding", none, fixedDuty{33, true}, PreferAuto, 5000, 1650},
		{"nil sources", nil, nil, PreferAuto, 5000, UnknownRPM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &FanResolver{Hwmon: tt.hwmon, Nvidia: tt.nvidia}
			assert.Equal(t, tt.want, r.Resolve(context.Background(), tt.pref, tt.maxRPM))
		})
	}
}

func TestFanResolverHwmonZeroFallsThrough(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/sys/class/hwmon/hwmon0/fan1_input": "0\n",
	})
	runner := newFakeRunner(map[string]string{
		"nvidia-smi --query-gpu=fan.speed --format=csv,noheader,nounits": "50\n",
	})

	r := NewFanResolver(fs, nil, runner)
	assert.Equal(t, 2000, r.Resolve(context.Background(), PreferAuto, 4000))
}

func TestHwmonFansMax(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/sys/class/hwmon/hwmon0/fan1_input": "0\n",
		"/sys/class/hwmon/hwmon0/fan2_input": "1200\n",
		"/sys/class/hwmon/hwmon3/fan1_input": "2400\n",
		"/sys/class/hwmon/hwmon3/fan2_input": "garbage\n",
	})

	v, ok := HwmonFans{FS: fs}.RPM(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 2400, v)

	_, ok = HwmonFans{FS: afero.NewMemMapFs()}.RPM(context.Background())
	assert.False(t, ok)
}

func TestDutyChain(t *testing.T) {
	runner := newFakeRunner(map[string]string{
		"nvidia-smi --query-gpu=fan.speed --format=csv,noheader,nounits": "41\n38\n",
	})

	chain := DutyChain{NVMLDuty{Reader: fakeGPU{err: errors.New("no nvml")}}, SMIDuty{Runner: runner}}
	pct, ok := chain.Duty(context.Background())
	assert.True(t, ok)
	assert.InDelta(t, 41.0, pct, 0.001)

	chain = DutyChain{NVMLDuty{Reader: fakeGPU{duty: 60}}, SMIDuty{Runner: runner}}
	pct, ok = chain.Duty(context.Background())
	assert.True(t, ok)
	assert.InDelta(t, 60.0, pct, 0.001)
	assert.Len(t, runner.calls, 1)

	_, ok = SMIDuty{Runner: newFakeRunner(map[string]string{
		"nvidia-smi --query-gpu=fan.speed --format=csv,noheader,nounits": "[N/A]\n",
	})}.Duty(context.Background())
	assert.False(t, ok)
}

func TestParsePreference(t *testing.T) {
	assert.Equal(t, PreferHwmon, ParsePreference("HWMON"))
	assert.Equal(t, PreferNvidia, ParsePreference(" nvidia "))
	assert.Equal(t, PreferAuto, ParsePreference("auto"))
	assert.Equal(t, PreferAuto, ParsePreference("bogus"))
}
