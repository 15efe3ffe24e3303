package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexsync/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "indexsync.sock", filepath.Base(cfg.SocketPath))
	assert.Equal(t, cfg.PIDPath+".lock", cfg.LockPath)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromConfig_DefaultsTimeout(t *testing.T) {
	cfg := FromConfig(config.DaemonConfig{SocketPath: "/tmp/a.sock", PIDPath: "/tmp/a.pid"})
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "/tmp/a.pid.lock", cfg.LockPath)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{SocketPath: "s", PIDPath: "p", Timeout: time.Second, ShutdownGracePeriod: time.Second}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"no socket", func(c *Config) { c.SocketPath = "" }, "socket path"},
		{"no pid", func(c *Config) { c.PIDPath = "" }, "PID path"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"zero grace", func(c *Config) { c.ShutdownGracePeriod = 0 }, "grace period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_EnsureDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SocketPath: filepath.Join(dir, "run", "indexsync.sock"),
		PIDPath:    filepath.Join(dir, "state", "indexsync.pid"),
		LockPath:   filepath.Join(dir, "state", "indexsync.pid.lock"),
	}

	require.NoError(t, cfg.EnsureDir())

	for _, sub := range []string{"run", "state"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
