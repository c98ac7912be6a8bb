package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	replies       []*Reply
	activations   []*Activation
	failing       bool
	flushTicker   clockwork.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger, clock clockwork.Clock) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// Open database with specific pragmas for better performance and safety
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		replies:       make([]*Reply, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Start background goroutine for periodic flushing if batching is enabled
	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		repo.flushTicker = clock.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) RecordReply(reply *Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.replies = append(r.replies, reply)

	return r.maybeFlush()
}

func (r *repository) RecordActivation(attempt *Activation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activations = append(r.activations, attempt)

	return r.maybeFlush()
}

// maybeFlush writes the buffers once they reach the batch size. Without
// batching every record is written immediately.
func (r *repository) maybeFlush() error {
	if len(r.replies)+len(r.activations) >= r.cfg.BatchSize {
		return r.flush()
	}
	return nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		// Signal the flusher goroutine to stop
		close(r.shutdownChan)

		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}

		// Wait for the flusher to finish its final flush
		<-r.flushDoneChan

		r.mu.Lock()
		if err := r.flush(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush history on close")
		}
		r.mu.Unlock()

		// Checkpoint WAL and cleanup on close
		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("History repository closed gracefully")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.Chan():
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes both buffers in one transaction. A failed batch is dropped so
// the buffers stay bounded; only the first failure of a run is reported.
func (r *repository) flush() error {
	if len(r.replies) == 0 && len(r.activations) == 0 {
		return nil
	}

	replies, activations := len(r.replies), len(r.activations)
	err := r.commit()
	r.replies = r.replies[:0]
	r.activations = r.activations[:0]

	if err != nil {
		if r.failing {
			r.logger.Debug().Err(err).Int("dropped", replies+activations).Msg("History flush still failing")
			return nil
		}
		r.failing = true
		r.logger.Warn().Err(err).Int("dropped", replies+activations).Msg("History flush failed, dropping batch")
		return err
	}

	if r.failing {
		r.failing = false
		r.logger.Info().Msg("History flush recovered")
	}
	r.logger.Debug().
		Int("replies", replies).
		Int("activations", activations).
		Msg("Flushed history to database")

	return nil
}

func (r *repository) commit() error {
	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := r.insertAll(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	return nil
}

func (r *repository) insertAll(tx *sql.Tx) error {
	if len(r.replies) > 0 {
		stmt, err := tx.Prepare(insertReplySQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, reply := range r.replies {
			if _, err := stmt.Exec(
				reply.Timestamp.UnixMilli(),
				string(reply.Phase),
				int64(reply.TileID),
				reply.Tile,
				int64(reply.Seq),
				reply.Payload,
			); err != nil {
				return err
			}
		}
	}

	if len(r.activations) > 0 {
		stmt, err := tx.Prepare(insertActivationSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range r.activations {
			if _, err := stmt.Exec(
				a.Timestamp.UnixMilli(),
				int64(a.Attempt),
				int64(a.Attempts),
				int64(boolToInt(a.Activated)),
				int64(a.Polls),
				int64(a.BootReplies),
			); err != nil {
				return err
			}
		}
	}

	return nil
}
