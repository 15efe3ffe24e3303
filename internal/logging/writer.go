package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotatingWriter appends to a log file and rotates it by size. Older
// generations are kept as <path>.1 (newest) through <path>.<keep>.
type RotatingWriter struct {
	path  string
	limit int64
	keep  int

	mu    sync.Mutex
	f     *os.File
	size  int64
	fsync bool
}

// NewRotatingWriter opens path for appending. Every write is synced until
// SetImmediateSync(false) so `indexsync logs -f` sees lines at once.
func NewRotatingWriter(path string, maxSizeMB, keep int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &RotatingWriter{
		path:  path,
		limit: int64(maxSizeMB) << 20,
		keep:  keep,
		fsync: true,
	}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync toggles the fsync after each write.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	w.fsync = enabled
	w.mu.Unlock()
}

// generation names the n-th file; 0 is the live log.
func (w *RotatingWriter) generation(n int) string {
	if n == 0 {
		return w.path
	}
	return w.path + "." + strconv.Itoa(n)
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A single oversized record still goes into a fresh file rather than
	// rotating an empty one.
	if w.size > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "indexsync: log rotation failed: %v\n", err)
		}
	}
	if w.f == nil {
		if err := w.reopen(); err != nil {
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	if err == nil && w.fsync {
		_ = w.f.Sync()
	}
	return n, err
}

// Sync flushes the live file.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

// Close closes the live file. Closing twice is fine.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingWriter) reopen() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.f, w.size = f, info.Size()
	return nil
}

// rotate drops the oldest generation and shifts the rest up by one.
func (w *RotatingWriter) rotate() error {
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.f = nil
	}

	if err := os.Remove(w.generation(w.keep)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to drop oldest log: %w", err)
	}
	for n := w.keep - 1; n >= 0; n-- {
		err := os.Rename(w.generation(n), w.generation(n+1))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to rotate %s: %w", w.generation(n), err)
		}
	}
	return w.reopen()
}
