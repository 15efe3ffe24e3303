package preflight

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/indexsync/internal/config"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Store.Path = filepath.Join(dir, "data", "queue.db")
	cfg.Search.Path = filepath.Join(dir, "data", "index.bleve")
	cfg.Daemon.PIDPath = filepath.Join(dir, "run", "indexsync.pid")
	cfg.Daemon.SocketPath = filepath.Join("/tmp", "indexsync-preflight.sock")
	return cfg
}

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestRunAll_HealthyHost(t *testing.T) {
	// Given: a config whose data directories do not exist yet
	cfg := testConfig(t)

	// When: running every check
	results := New(cfg).RunAll(context.Background())

	// Then: the directories are created and nothing is critical
	for _, r := range results {
		assert.False(t, r.IsCritical(), "%s: %s", r.Name, r.Message)
	}
	assert.DirExists(t, filepath.Dir(cfg.Store.Path))
	assert.DirExists(t, filepath.Dir(cfg.Daemon.PIDPath))
	assert.NoError(t, Err(results))
	assert.Equal(t, "ready", SummaryStatus(results))
}

func TestRunAll_MemoryBackendsSkipDataDirs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "memory"
	cfg.Search.Backend = "memory"

	dirs := New(cfg).dataDirs()

	assert.Equal(t, []string{filepath.Dir(cfg.Daemon.PIDPath)}, dirs)
}

func TestCheckSocketPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want CheckStatus
	}{
		{"short", "/tmp/indexsync.sock", StatusPass},
		{"empty", "", StatusFail},
		{"too long", "/tmp/" + strings.Repeat("x", 120) + ".sock", StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Daemon.SocketPath = tt.path

			assert.Equal(t, tt.want, New(cfg).CheckSocketPath().Status)
		})
	}
}

func TestCheckSourceDatabase(t *testing.T) {
	// Given: a SQLite source with one table
	dbPath := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE listings (id INTEGER PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := testConfig(t)
	cfg.Source.Database = dbPath
	cfg.Source.Tables = map[string]string{"listing": "listings"}

	// When: checking it
	r := New(cfg).CheckSourceDatabase(context.Background())

	// Then: it passes
	assert.Equal(t, StatusPass, r.Status, r.Details)
	assert.Contains(t, r.Message, "1 entities")
}

func TestCheckSourceDatabase_NotConfigured(t *testing.T) {
	r := New(testConfig(t)).CheckSourceDatabase(context.Background())

	assert.Equal(t, StatusPass, r.Status)
	assert.False(t, r.Required)
}

func TestCheckSourceDatabase_Missing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Database = filepath.Join(t.TempDir(), "missing.db")

	r := New(cfg).CheckSourceDatabase(context.Background())

	assert.True(t, r.IsCritical())
}

func TestErr_SummarizesCriticalFailures(t *testing.T) {
	results := []CheckResult{
		pass("a", "OK"),
		fail("socket_path", "too long"),
		{Name: "optional", Status: StatusFail},
	}

	err := Err(results)

	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrDependencyUnavailable)
	assert.Contains(t, err.Error(), "host")
	assert.Equal(t, "failed", SummaryStatus(results))
}

func TestSummaryStatus_Warnings(t *testing.T) {
	results := []CheckResult{pass("a", "OK"), {Name: "b", Status: StatusWarn}}

	assert.Equal(t, "ready_with_warnings", SummaryStatus(results))
}

func TestPrintResults(t *testing.T) {
	buf := &bytes.Buffer{}
	r := fail("file_descriptors", "64 (minimum: 256)")
	r.Details = "Run 'ulimit -n 4096' to increase the limit"

	PrintResults(buf, []CheckResult{pass("socket_path", "/tmp/x.sock"), r}, false)

	out := buf.String()
	assert.Contains(t, out, "[PASS] socket_path: /tmp/x.sock")
	assert.Contains(t, out, "[FAIL] file_descriptors: 64 (minimum: 256)")
	assert.Contains(t, out, "ulimit -n 4096")
	assert.Contains(t, out, "Status: FAILED")
}

func TestCheckResult_JSONStatusByName(t *testing.T) {
	data, err := json.Marshal(pass("x", "OK"))

	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"pass"`)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2<<30))
}
