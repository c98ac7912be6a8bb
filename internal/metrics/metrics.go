// Package metrics keeps an optional SQLite history of the replies sent to
// the panel and of every activation attempt.
package metrics

import (
	"context"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"github.com/jonboulle/clockwork"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopCollector struct{}

// NewService returns a collector backed by SQLite, or a no-op collector when
// history is disabled.
func NewService(cfg Config, log logger.Logger, clock clockwork.Clock) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History collection disabled, using no-op collector")
		return Noop(), nil
	}

	repo, err := NewRepository(cfg, log, clock)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("History service initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

// Noop returns a collector that discards everything.
func Noop() Collector {
	return &noopCollector{}
}

func (s *service) RecordReply(ctx context.Context, reply *Reply) error {
	errFactory := errors.New()

	if reply == nil {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.RecordReply(reply); err != nil {
			return errFactory.Wrap(ErrCollection, err)
		}
	}

	return nil
}

func (s *service) RecordActivation(ctx context.Context, attempt *Activation) error {
	errFactory := errors.New()

	if attempt == nil {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.RecordActivation(attempt); err != nil {
			return errFactory.Wrap(ErrCollection, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopCollector) RecordReply(context.Context, *Reply) error {
	return nil
}

func (*noopCollector) RecordActivation(context.Context, *Activation) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
