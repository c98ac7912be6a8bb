package sensors

import (
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	// CommandTimeout bounds every external tool invocation.
	CommandTimeout = 700 * time.Millisecond
	// FileTimeout bounds every sysfs/procfs read.
	FileTimeout = 500 * time.Millisecond
)

// Runner runs an external command and returns its stdout. A failure, a
// non-zero exit or a timeout all yield ok=false.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, bool)
}

// CommandRunner runs real processes with a per-call timeout.
type CommandRunner struct {
	Timeout time.Duration
}

func NewCommandRunner() *CommandRunner {
	return &CommandRunner{Timeout: CommandTimeout}
}

func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	//nolint:gosec // command names are fixed tool names chosen by this package
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", false
	}

	return string(out), true
}

// bounded runs fn with a context that expires after timeout and gives up
// when it does. fn must honour that context; a read that ignores it keeps its
// goroutine until it returns, but the caller is released.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, bool) {
	type result struct {
		v   T
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err == nil
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// readString reads a small virtual file and trims surrounding whitespace.
func readString(ctx context.Context, fs afero.Fs, path string) (string, bool) {
	data, ok := bounded(ctx, FileTimeout, func(_ context.Context) ([]byte, error) {
		return afero.ReadFile(fs, path)
	})
	if !ok {
		return "", false
	}

	return strings.TrimSpace(string(data)), true
}

// readInt reads a virtual file holding a single integer.
func readInt(ctx context.Context, fs afero.Fs, path string) (int, bool) {
	s, ok := readString(ctx, fs, path)
	if !ok {
		return 0, false
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}

	return v, true
}

// sortedGlob returns matches of pattern in lexical order.
func sortedGlob(fs afero.Fs, pattern string) []string {
	paths, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil
	}
	sort.Strings(paths)

	return paths
}
