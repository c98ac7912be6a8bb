package metrics

import (
	"database/sql"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/logger"
)

const (
	SchemaVersion = 1

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS replies (
	       id        INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp INTEGER NOT NULL,
	       phase     TEXT NOT NULL CHECK (phase IN ('unlock', 'steady')),
	       tile_id   INTEGER NOT NULL CHECK (tile_id BETWEEN 0 AND 255),
	       tile      TEXT NOT NULL,
	       seq       INTEGER NOT NULL CHECK (seq BETWEEN 0 AND 255),
	       payload   TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_replies_timestamp ON replies (timestamp);
	   CREATE TABLE IF NOT EXISTS activations (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp    INTEGER NOT NULL,
	       attempt      INTEGER NOT NULL CHECK (attempt >= 1),
	       attempts     INTEGER NOT NULL CHECK (attempts >= attempt),
	       activated    INTEGER NOT NULL CHECK (activated IN (0, 1)),
	       polls        INTEGER NOT NULL CHECK (typeof(polls) = 'integer'),
	       boot_replies INTEGER NOT NULL CHECK (typeof(boot_replies) = 'integer')
	   );`

	insertReplySQL = `
    INSERT INTO replies (
        timestamp, phase, tile_id, tile, seq, payload
    ) VALUES (?, ?, ?, ?, ?, ?)`

	insertActivationSQL = `
    INSERT INTO activations (
        timestamp, attempt, attempts, activated, polls, boot_replies
    ) VALUES (?, ?, ?, ?, ?, ?)`
)

var managedTables = []string{"replies", "activations", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
