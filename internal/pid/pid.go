// Package pid guards the serial port with a PID file so two daemons never
// answer the same panel.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/atommanctl/internal/errors"
	"github.com/spf13/afero"
)

const (
	pidFile = "atommanctl.pid"
)

// File is a PID file on fs.
type File struct {
	fs    afero.Fs
	path  string
	alive func(pid int) bool
}

// New returns a PID file in dir.
func New(fs afero.Fs, dir string) *File {
	return &File{
		fs:    fs,
		path:  filepath.Join(dir, pidFile),
		alive: processAlive,
	}
}

// Default returns the PID file in the system temp directory.
func Default() *File {
	return New(afero.NewOsFs(), os.TempDir())
}

// Path returns the PID file location.
func (f *File) Path() string {
	return f.path
}

// Write records the current process ID. A PID file left behind by a process
// that is no longer running is replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if data, err := afero.ReadFile(f.fs, f.path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid != os.Getpid() && f.alive(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				PID  int
				Path string
			}{
				PID:  pid,
				Path: f.path,
			})
		}
	}

	if err := afero.WriteFile(f.fs, f.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func (f *File) Remove() error {
	errFactory := errors.New()

	if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
