package metrics

import (
	"context"
	"time"
)

// Collector records protocol history
type Collector interface {
	RecordReply(ctx context.Context, reply *Reply) error
	RecordActivation(ctx context.Context, attempt *Activation) error
	Close() error
}

// Repository defines the interface for history storage
type Repository interface {
	RecordReply(reply *Reply) error
	RecordActivation(attempt *Activation) error
	Close() error
}

// Phase is the protocol phase a reply was sent in
type Phase string

const (
	PhaseUnlock Phase = "unlock"
	PhaseSteady Phase = "steady"
)

// Reply is one frame sent to the panel
type Reply struct {
	Timestamp time.Time
	Phase     Phase
	TileID    byte
	Tile      string
	Seq       byte
	Payload   string
}

// Activation is the outcome of one unlock attempt
type Activation struct {
	Timestamp   time.Time
	Attempt     int
	Attempts    int
	Activated   bool
	Polls       int
	BootReplies int
}
