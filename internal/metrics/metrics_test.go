package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"codeberg.org/mutker/atommanctl/internal/logger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	dir := t.TempDir()
	return Config{
		DBPath:    filepath.Join(dir, "history.db"),
		BackupDir: filepath.Join(dir, "backups"),
		Enabled:   true,
	}
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestNoopWhenDisabled(t *testing.T) {
	c, err := NewService(Config{}, logger.Default(), nil)
	require.NoError(t, err)

	assert.NoError(t, c.RecordReply(context.Background(), &Reply{}))
	assert.NoError(t, c.RecordActivation(context.Background(), &Activation{}))
	assert.NoError(t, c.Close())
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewService(Config{Enabled: true}, logger.Default(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}

func TestRecordWithoutBatching(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewService(cfg, logger.Default(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, c.RecordReply(ctx, &Reply{
		Timestamp: now, Phase: PhaseUnlock, TileID: 0x53, Tile: "CPU", Seq: '1', Payload: "{CPU:x}",
	}))
	require.NoError(t, c.RecordActivation(ctx, &Activation{
		Timestamp: now, Attempt: 1, Attempts: 3, Activated: true, Polls: 6, BootReplies: 4,
	}))

	assert.Equal(t, 1, countRows(t, cfg.DBPath, "replies"))
	assert.Equal(t, 1, countRows(t, cfg.DBPath, "activations"))
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestFailedFlushDropsBatch(t *testing.T) {
	cfg := testConfig(t)
	repo, err := NewRepository(cfg, logger.Default(), nil)
	require.NoError(t, err)
	r := repo.(*repository)
	t.Cleanup(func() { _ = r.Close() })

	_, err = r.db.Exec("DROP TABLE replies")
	require.NoError(t, err)

	reply := &Reply{
		Timestamp: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		Phase:     PhaseSteady, TileID: 0x27, Tile: "NET", Seq: '7', Payload: "{NET}",
	}

	err = r.RecordReply(reply)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))
	assert.Empty(t, r.replies)
	assert.True(t, r.failing)

	// Later failures in the same run are dropped without an error
	for range 3 {
		require.NoError(t, r.RecordReply(reply))
		assert.Empty(t, r.replies)
	}

	_, err = r.db.Exec(createTablesSQL)
	require.NoError(t, err)

	require.NoError(t, r.RecordReply(reply))
	assert.False(t, r.failing)
	assert.Equal(t, 1, countRows(t, cfg.DBPath, "replies"))
}

func TestRecordBatched(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 3
	c, err := NewService(cfg, logger.Default(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	reply := &Reply{Timestamp: time.Now(), Phase: PhaseSteady, TileID: 0x10, Tile: "VOL", Seq: '9', Payload: "{VOLUME:5}"}
	require.NoError(t, c.RecordReply(ctx, reply))
	require.NoError(t, c.RecordReply(ctx, reply))
	assert.Equal(t, 0, countRows(t, cfg.DBPath, "replies"))

	require.NoError(t, c.RecordReply(ctx, reply))
	assert.Equal(t, 3, countRows(t, cfg.DBPath, "replies"))

	require.NoError(t, c.RecordReply(ctx, reply))
	require.NoError(t, c.Close())
	assert.Equal(t, 4, countRows(t, cfg.DBPath, "replies"))
}

func TestPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 10 * time.Second
	clock := clockwork.NewFakeClock()

	c, err := NewService(cfg, logger.Default(), clock)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RecordReply(context.Background(), &Reply{
		Timestamp: time.Now(), Phase: PhaseSteady, TileID: 0x6B, Tile: "DAT", Seq: '6', Payload: "{Date:}",
	}))
	assert.Equal(t, 0, countRows(t, cfg.DBPath, "replies"))

	clock.Advance(cfg.BatchTimeout)
	assert.Eventually(t, func() bool {
		return countRows(t, cfg.DBPath, "replies") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsNilRecords(t *testing.T) {
	c, err := NewService(testConfig(t), logger.Default(), nil)
	require.NoError(t, err)
	defer c.Close()

	err = c.RecordReply(context.Background(), nil)
	assert.True(t, errors.HasCode(err, ErrInvalidRecord))
	err = c.RecordActivation(context.Background(), nil)
	assert.True(t, errors.HasCode(err, ErrInvalidRecord))
}

func TestCancelledContext(t *testing.T) {
	c, err := NewService(testConfig(t), logger.Default(), nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.RecordReply(ctx, &Reply{Phase: PhaseSteady})
	assert.True(t, errors.HasCode(err, ErrOperationTimeout))
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c, err := NewService(cfg, logger.Default(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}
