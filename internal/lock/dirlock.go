// Package lock guards an output directory against concurrent export runs
// using an exclusively-created lock file.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyLocked is returned when another run holds the directory lock.
var ErrAlreadyLocked = errors.New("output directory is locked by another run")

const lockFileName = ".bulkvault.lock"

// DirLock is an exclusive lock over one output directory. The lock file
// records the holder's PID and acquisition time for diagnostics.
type DirLock struct {
	dir  string
	path string
	held bool
}

// NewDirLock creates a lock for the given output directory. The lock is not
// acquired until Acquire is called.
func NewDirLock(dir string) *DirLock {
	return &DirLock{
		dir:  dir,
		path: filepath.Join(dir, lockFileName),
	}
}

// Acquire creates the lock file exclusively. Returns ErrAlreadyLocked when a
// lock file already exists.
func (l *DirLock) Acquire() error {
	if l.held {
		return nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyLocked, l.path)
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	fmt.Fprintf(f, "pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	l.held = true
	return nil
}

// Release removes the lock file. Releasing a lock that is not held is a
// no-op.
func (l *DirLock) Release() error {
	if !l.held {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	l.held = false
	return nil
}

// IsHeld reports whether this instance holds the lock.
func (l *DirLock) IsHeld() bool {
	return l.held
}

// HolderPID reads the PID recorded in an existing lock file, or 0 when no
// lock file exists or it is unreadable.
func (l *DirLock) HolderPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "pid="); ok {
			if pid, err := strconv.Atoi(rest); err == nil {
				return pid
			}
		}
	}
	return 0
}

// WithLock runs fn while holding the directory lock, releasing it on any
// exit path including panic.
func (l *DirLock) WithLock(fn func() error) error {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
