package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Aman-CERP/indexsync/pkg/version"
)

// ErrNotServing means no process record exists at the configured path.
var ErrNotServing = errors.New("no serving indexsync process recorded")

// ProcessRecord describes the serving process. It is written as JSON next
// to the instance lock so `indexsync stop --daemon` can find it.
type ProcessRecord struct {
	PID       int       `json:"pid"`
	Socket    string    `json:"socket"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Uptime is the time since the process started serving.
func (r ProcessRecord) Uptime() time.Duration {
	return time.Since(r.StartedAt)
}

// ProcessFile stores the ProcessRecord of the serving daemon.
type ProcessFile struct {
	path string
}

// NewProcessFile returns a ProcessFile at path.
func NewProcessFile(path string) *ProcessFile {
	return &ProcessFile{path: path}
}

// Record writes the current process's record. The file is replaced
// atomically so a concurrent Load never sees a partial write.
func (f *ProcessFile) Record(socket string) error {
	rec := ProcessRecord{
		PID:       os.Getpid(),
		Socket:    socket,
		Version:   version.Short(),
		StartedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".indexsync-pid-*")
	if err != nil {
		return fmt.Errorf("failed to record process: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to record process: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to record process: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to record process: %w", err)
	}
	return nil
}

// Load reads the record. A missing file yields ErrNotServing.
func (f *ProcessFile) Load() (ProcessRecord, error) {
	var rec ProcessRecord
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, ErrNotServing
	}
	if err != nil {
		return rec, fmt.Errorf("failed to read process record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		return ProcessRecord{}, fmt.Errorf("corrupt process record %s", f.path)
	}
	return rec, nil
}

// Clear removes the record. Clearing twice is fine.
func (f *ProcessFile) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove process record: %w", err)
	}
	return nil
}

// Live returns the record when the recorded process still exists. A record
// left behind by a crashed process reports false.
func (f *ProcessFile) Live() (ProcessRecord, bool) {
	rec, err := f.Load()
	if err != nil {
		return rec, false
	}
	// Signal 0 checks existence without delivering anything.
	return rec, syscall.Kill(rec.PID, 0) == nil
}

// Terminate asks the recorded process to shut down gracefully.
func (f *ProcessFile) Terminate() (ProcessRecord, error) {
	rec, ok := f.Live()
	if !ok {
		return rec, ErrNotServing
	}
	if err := syscall.Kill(rec.PID, syscall.SIGTERM); err != nil {
		return rec, fmt.Errorf("failed to signal process %d: %w", rec.PID, err)
	}
	return rec, nil
}
