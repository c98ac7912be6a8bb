// Package panel drives the AtomMan status panel: the activation handshake
// followed by the steady-state reply loop. The panel paces everything; the
// engine only ever writes in answer to a poll.
package panel

import (
	"context"
	"time"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"codeberg.org/mutker/atommanctl/internal/metrics"
	"codeberg.org/mutker/atommanctl/internal/protocol"
	"codeberg.org/mutker/atommanctl/internal/tiles"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultAttempts = 3
	DefaultWindow   = 5 * time.Second
)

// Config parameterises the activation handshake.
type Config struct {
	Attempts int
	Window   time.Duration
}

// Engine answers panel polls. It is not safe for concurrent use; one
// goroutine owns the link for the life of the process.
type Engine struct {
	link    Link
	sensors tiles.Sensors
	clock   clockwork.Clock
	history metrics.Collector
	cfg     Config
}

func New(link Link, sensors tiles.Sensors, clock clockwork.Clock, history metrics.Collector, cfg Config) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if history == nil {
		history = metrics.Noop()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	return &Engine{
		link:    link,
		sensors: sensors,
		clock:   clock,
		history: history,
		cfg:     cfg,
	}
}

// Activate runs the unlock handshake. Failing to activate is not an error;
// only a transport failure or cancellation is.
func (e *Engine) Activate(ctx context.Context) (Result, error) {
	for k := 1; k <= e.cfg.Attempts; k++ {
		logger.Info().Msgf("Unlock attempt %d/%d, window %s", k, e.cfg.Attempts, e.cfg.Window)

		ok, err := e.attempt(ctx, k)
		if err != nil {
			return Result{State: StateFailed, Attempts: k}, err
		}

		if ok {
			logger.Info().Int("attempt", k).Msg("Panel activated")
			return Result{State: StateActivated, Attempts: k}, nil
		}

		logger.Info().Int("attempt", k).Msg("No activation within window")

		if k < e.cfg.Attempts {
			if err := e.link.PulseControlLine(); err != nil {
				logger.Warn().Err(err).Msg("Failed to pulse control line")
			}
		}
	}

	return Result{State: StateFailed, Attempts: e.cfg.Attempts}, nil
}

func (e *Engine) attempt(ctx context.Context, k int) (bool, error) {
	unlock := tiles.UnlockRotation()
	state := &activation{}
	deadline := e.clock.Now().Add(e.cfg.Window)

	defer func() {
		e.recordActivation(ctx, k, state)
	}()

	for e.clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		seq, ok, err := e.nextPoll()
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		now := e.clock.Now()
		tile := unlock[state.next(len(unlock))]
		if err := e.reply(ctx, metrics.PhaseUnlock, tile, seq, now); err != nil {
			return false, err
		}

		state.observe(now, seq)
		if state.activated() {
			return true, nil
		}
	}

	return false, nil
}

// Run serves the full tile rotation until ctx is cancelled, answering every
// valid poll with the next tile under its fixed sequence code.
func (e *Engine) Run(ctx context.Context) error {
	rotation := tiles.FullRotation()
	idx := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, ok, err := e.nextPoll()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		tile := rotation[idx]
		idx = (idx + 1) % len(rotation)

		if err := e.reply(ctx, metrics.PhaseSteady, tile, tile.Seq, e.clock.Now()); err != nil {
			return err
		}
	}
}

// nextPoll reads one poll frame. ok is false for a timeout or a malformed
// frame; err is set only when the link itself fails.
func (e *Engine) nextPoll() (byte, bool, error) {
	seq, outcome, err := protocol.ReadPoll(e.link)
	if err != nil {
		return 0, false, errors.New().Wrap(ErrReadFrame, err)
	}

	if outcome == protocol.PollInvalid {
		logger.Debug().Msg("Discarded malformed poll")
	}

	return seq, outcome == protocol.PollValid, nil
}

func (e *Engine) reply(ctx context.Context, phase metrics.Phase, tile tiles.Tile, seq byte, now time.Time) error {
	errFactory := errors.New()

	payload := tile.Payload(ctx, e.sensors, now)
	frame := protocol.BuildReply(tile.ID, seq, payload)

	if err := e.link.Write(frame); err != nil {
		return errFactory.Wrap(ErrWriteFrame, err)
	}
	if err := e.link.Flush(); err != nil {
		return errFactory.Wrap(ErrFlushFrame, err)
	}

	logger.Debug().
		Str("phase", string(phase)).
		Str("tile", tile.Name).
		Str("seq", string(rune(seq))).
		Msg("Reply sent")

	if err := e.history.RecordReply(ctx, &metrics.Reply{
		Timestamp: now,
		Phase:     phase,
		TileID:    tile.ID,
		Tile:      tile.Name,
		Seq:       seq,
		Payload:   payload,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to record reply")
	}

	return nil
}

func (e *Engine) recordActivation(ctx context.Context, k int, state *activation) {
	if err := e.history.RecordActivation(ctx, &metrics.Activation{
		Timestamp:   e.clock.Now(),
		Attempt:     k,
		Attempts:    e.cfg.Attempts,
		Activated:   state.activated(),
		Polls:       state.polls,
		BootReplies: state.bootReplies,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to record activation attempt")
	}
}
