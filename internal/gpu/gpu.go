// Package gpu reads NVIDIA GPU state through NVML.
package gpu

import (
	"sync"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type (
	Return            = nvml.Return
	TemperatureSensor = nvml.TemperatureSensors
	Utilization       = nvml.Utilization
)

// NVML is a Reader backed by the first NVML device.
type NVML struct {
	device nvmlDevice
	mu     sync.Mutex
	closed bool
	owned  bool
}

// Open initialises NVML and binds to device 0. It fails cleanly when the
// NVIDIA driver library is not installed.
func Open() (*NVML, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) || count == 0 {
		_ = nvml.Shutdown()
		if IsNVMLSuccess(ret) {
			return nil, errFactory.New(ErrDeviceNotFound)
		}
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(0)
	if !IsNVMLSuccess(ret) {
		_ = nvml.Shutdown()
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	g := &NVML{device: device, owned: true}
	if name, err := g.Name(); err == nil {
		logger.Info().Msgf("Detected GPU: %v", name)
	}

	return g, nil
}

func newWithDevice(device nvmlDevice) *NVML {
	return &NVML{device: device}
}

func (g *NVML) Name() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return "", errors.New().New(ErrNotInitialized)
	}

	name, ret := g.device.GetName()
	if !IsNVMLSuccess(ret) {
		return "", errors.New().Wrap(ErrNameReadFailed, newNVMLError(ret))
	}

	return name, nil
}

func (g *NVML) Temperature() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0, errors.New().New(ErrNotInitialized)
	}

	temp, ret := g.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
	}

	return int(temp), nil
}

func (g *NVML) Utilization() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0, errors.New().New(ErrNotInitialized)
	}

	rates, ret := g.device.GetUtilizationRates()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrUtilizationFailed, newNVMLError(ret))
	}

	return int(rates.Gpu), nil
}

func (g *NVML) FanDuty() (int, error) {
	errFactory := errors.New()
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := g.device.GetNumFans()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrFanCountFailed, newNVMLError(ret))
	}
	if count == 0 {
		return 0, errFactory.New(ErrFanCountFailed)
	}

	best := -1
	for i := 0; i < count; i++ {
		speed, ret := g.device.GetFanSpeed_v2(i)
		if !IsNVMLSuccess(ret) {
			logger.Debug().Int("fan", i).Int("nvml_return", int(ret)).Msg("Failed to get fan speed")
			continue
		}
		best = max(best, int(speed))
	}
	if best < 0 {
		return 0, errFactory.New(ErrGetFanSpeedFailed)
	}

	return best, nil
}

// Shutdown releases NVML. Subsequent reads fail with ErrNotInitialized.
func (g *NVML) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	if !g.owned {
		return nil
	}
	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	return nil
}
