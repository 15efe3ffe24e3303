package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

// InstanceLock is a cross-process exclusive lock held for the lifetime of a
// serving process, so a queue never has two consumers.
type InstanceLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewInstanceLock creates a lock backed by the file at path.
func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{path: path, flock: flock.New(path)}
}

// Acquire takes the lock without blocking. When another process holds it,
// Acquire fails with a DependencyUnavailable error.
func (l *InstanceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return serrors.DependencyUnavailable("instance lock", nil).
			WithDetail("lock", l.path).
			WithSuggestion("another indexsync process is serving this data directory; stop it first")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *InstanceLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Held reports whether this process holds the lock.
func (l *InstanceLock) Held() bool {
	return l.locked
}
