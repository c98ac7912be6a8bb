package sensors

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers commands from a table keyed by the joined command line.
type fakeRunner struct {
	out   map[string]string
	calls []string
}

func newFakeRunner(out map[string]string) *fakeRunner {
	return &fakeRunner{out: out}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, bool) {
	line := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, line)

	out, ok := f.out[line]
	return out, ok
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()

	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}
