package pid

import (
	"os"
	"strconv"
	"testing"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/run")

	require.NoError(t, f.Write())
	data, err := afero.ReadFile(fs, "/run/atommanctl.pid")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, f.Remove())
	exists, err := afero.Exists(fs, f.Path())
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, f.Remove(), "removing a missing file is fine")
}

func TestWriteRefusesRunningProcess(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/atommanctl.pid", []byte("4242\n"), 0o600))

	f := New(fs, "/run")
	f.alive = func(pid int) bool { return pid == 4242 }

	err := f.Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/run")
	f.alive = func(int) bool { return false }

	for _, content := range []string{"4242", "garbage"} {
		require.NoError(t, afero.WriteFile(fs, f.Path(), []byte(content), 0o600))
		require.NoError(t, f.Write())

		data, err := afero.ReadFile(fs, f.Path())
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
	}
}
