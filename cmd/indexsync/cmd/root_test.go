package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexsync/internal/daemon"
	"github.com/Aman-CERP/indexsync/pkg/version"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	out, err := runCLI(t, "--help")

	// Then: every top-level command is listed
	require.NoError(t, err)
	for _, name := range []string{"serve", "start", "stop", "sync", "reindex", "status", "stats", "queue", "enqueue", "search", "config", "logs", "version", "doctor"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := runCLI(t, "frobnicate")

	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, out string)
	}{
		{"full", []string{"version"}, func(t *testing.T, out string) {
			assert.Equal(t, version.String()+"\n", out)
		}},
		{"short", []string{"version", "--short"}, func(t *testing.T, out string) {
			assert.Equal(t, version.Short()+"\n", out)
		}},
		{"json", []string{"version", "--json"}, func(t *testing.T, out string) {
			var info version.BuildInfo
			require.NoError(t, json.Unmarshal([]byte(out), &info))
			assert.Equal(t, version.GetInfo().Version, info.Version)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, tt.args...)
			require.NoError(t, err)
			tt.check(t, out)
		})
	}
}

func TestVersionCmd_Daemon(t *testing.T) {
	cfg, path := testConfig(t)

	// Given: no serving daemon
	out, err := runCLI(t, "version", "--daemon", "--config", path)

	// Then: only the CLI build is reported
	require.NoError(t, err)
	assert.Contains(t, out, "cli     "+version.GetInfo().Version)
	assert.Contains(t, out, "daemon  not running")

	// When: a live process record exists
	require.NoError(t, daemon.NewProcessFile(cfg.Daemon.PIDPath).Record(cfg.Daemon.SocketPath))
	out, err = runCLI(t, "version", "--daemon", "--json", "--config", path)

	// Then: the recorded daemon version is included
	require.NoError(t, err)
	var report versionReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotNil(t, report.Daemon)
	assert.Equal(t, os.Getpid(), report.Daemon.PID)
	assert.Equal(t, version.Short(), report.Daemon.Version)
}

func TestLoadEnv(t *testing.T) {
	// Given: a dotenv file setting a variable
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("INDEXSYNC_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("INDEXSYNC_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("INDEXSYNC_TEST_DOTENV"))

	// When: loading it
	require.NoError(t, loadEnv(path))

	// Then: the variable is set
	assert.Equal(t, "from-file", os.Getenv("INDEXSYNC_TEST_DOTENV"))
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("INDEXSYNC_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("INDEXSYNC_TEST_DOTENV", "from-env")

	require.NoError(t, loadEnv(path))

	assert.Equal(t, "from-env", os.Getenv("INDEXSYNC_TEST_DOTENV"))
}

func TestLoadEnv_MissingExplicitFile(t *testing.T) {
	err := loadEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Error(t, err)
}
