package run

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// ErrLocked is returned when another process already holds the run lock.
var ErrLocked = errors.New("run: already locked")

// Lock is an advisory, file-based lock guarding one run's state directory.
// O_EXCL creation makes acquisition atomic on every filesystem we care about.
type Lock struct {
	path string
	held bool
}

// Acquire takes the lock at path, writing the holder's pid for diagnostics.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			holder := "unknown"
			if data, readErr := os.ReadFile(path); readErr == nil {
				holder = strings.TrimSpace(string(data))
			}
			return nil, fmt.Errorf("%w: held by pid %s", ErrLocked, holder)
		}
		return nil, fmt.Errorf("run: acquire lock %s: %w", path, err)
	}
	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("run: write lock %s: %w", path, errors.Join(writeErr, closeErr))
	}
	return &Lock{path: path, held: true}, nil
}

// Release drops the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("run: release lock %s: %w", l.path, err)
	}
	return nil
}
