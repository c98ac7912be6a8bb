package panel

import (
	"time"

	"codeberg.org/mutker/atommanctl/internal/protocol"
)

const (
	// ArrivalWindow is the trailing window poll density is measured over.
	ArrivalWindow = 2 * time.Second
	// MinBootReplies is the number of boot-sequence echoes required.
	MinBootReplies = 3
	// MinArrivals is the number of polls required inside ArrivalWindow.
	MinArrivals = 5
)

// State is the activation handshake state.
type State int

const (
	StateAttempting State = iota
	StateActivated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateActivated:
		return "activated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of the activation handshake.
type Result struct {
	State State
	// Attempts is the number of attempts used.
	Attempts int
}

// activation tracks one unlock attempt.
type activation struct {
	arrivals    []time.Time
	bootReplies int
	polls       int
	rotation    int
}

// observe records a poll answered at now with the echoed sequence byte.
func (a *activation) observe(now time.Time, seq byte) {
	a.polls++
	if protocol.IsBootSequence(seq) {
		a.bootReplies++
	}

	a.arrivals = append(a.arrivals, now)

	cutoff := now.Add(-ArrivalWindow)
	keep := a.arrivals[:0]
	for _, t := range a.arrivals {
		if !t.Before(cutoff) {
			keep = append(keep, t)
		}
	}
	a.arrivals = keep
}

// activated reports whether both thresholds are met.
func (a *activation) activated() bool {
	return a.bootReplies >= MinBootReplies && len(a.arrivals) >= MinArrivals
}

// next returns the unlock rotation index to serve and advances it.
func (a *activation) next(n int) int {
	i := a.rotation % n
	a.rotation++
	return i
}
