package gpu

// Reader exposes the read-only GPU values the panel tiles need.
type Reader interface {
	// Name returns the marketing name of the first GPU
	Name() (string, error)

	// Temperature returns the core temperature in Celsius
	Temperature() (int, error)

	// Utilization returns the core utilisation percentage
	Utilization() (int, error)

	// FanDuty returns the highest fan duty percentage across the GPU's fans
	FanDuty() (int, error)
}

// nvmlDevice is the subset of nvml.Device used by the reader, so tests can
// substitute a fake device.
type nvmlDevice interface {
	GetName() (string, Return)
	GetTemperature(sensor TemperatureSensor) (uint32, Return)
	GetUtilizationRates() (Utilization, Return)
	GetNumFans() (int, Return)
	GetFanSpeed_v2(fan int) (uint32, Return)
}
