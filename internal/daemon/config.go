// Package daemon serves the pipeline's control surface over a Unix socket.
// The serving process holds an exclusive lock on its data directory so only
// one consumer ever drains a queue.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/indexsync/internal/config"
)

// Config holds the control socket settings.
type Config struct {
	// SocketPath is the Unix domain socket path.
	SocketPath string

	// PIDPath is where the serving process records its PID.
	PIDPath string

	// LockPath is the single-instance lock file. Defaults to PIDPath + ".lock".
	LockPath string

	// Timeout bounds one request/response exchange.
	Timeout time.Duration

	// ShutdownGracePeriod bounds the final flush on shutdown.
	ShutdownGracePeriod time.Duration
}

// DefaultConfig returns the control socket defaults under ~/.indexsync.
func DefaultConfig() Config {
	return FromConfig(config.NewConfig().Daemon)
}

// FromConfig builds a Config from the daemon section of the configuration.
func FromConfig(dc config.DaemonConfig) Config {
	timeout := dc.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return Config{
		SocketPath:          dc.SocketPath,
		PIDPath:             dc.PIDPath,
		LockPath:            dc.PIDPath + ".lock",
		Timeout:             timeout,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories holding the socket, PID and lock files.
func (c Config) EnsureDir() error {
	seen := map[string]bool{}
	for _, p := range []string{c.SocketPath, c.PIDPath, c.LockPath} {
		if p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
