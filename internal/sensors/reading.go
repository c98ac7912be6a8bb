// Package sensors provides the values behind each panel tile. Every read
// returns a Reading that is either a value or explicitly absent; absence is
// mapped to the panel's sentinel values by the tile payloads, not here.
package sensors

// Reading is a sensor value that may be absent.
type Reading[T any] struct {
	Value T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) Reading[T] {
	return Reading[T]{Value: v, Valid: true}
}

// None is an absent value.
func None[T any]() Reading[T] {
	return Reading[T]{}
}

// Get returns the value and whether it is present.
func (r Reading[T]) Get() (T, bool) {
	return r.Value, r.Valid
}

// Or returns the value, or fallback when absent.
func (r Reading[T]) Or(fallback T) T {
	if !r.Valid {
		return fallback
	}
	return r.Value
}

type CPUReading struct {
	Model   Reading[string]
	Temp    Reading[int]
	Usage   Reading[int]
	FreqKHz Reading[int]
}

type GPUReading struct {
	Name  Reading[string]
	Temp  Reading[int]
	Usage Reading[int]
}

type MemoryReading struct {
	Vendor      Reading[string]
	UsedGB      Reading[float64]
	AvailableGB Reading[float64]
	TotalGB     Reading[float64]
	Usage       Reading[int]
}

type DiskReading struct {
	Label   Reading[string]
	UsedGB  Reading[int]
	TotalGB Reading[int]
	Usage   Reading[int]
}

type NetworkReading struct {
	// FanRPM is the resolved fan speed; UnknownRPM when no source answered.
	FanRPM int
	RxKBps Reading[float64]
	TxKBps Reading[float64]
}
