package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/daemon"
)

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// testConfig writes an all-in-memory config and returns it with its path.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewConfig()
	cfg.Store.Backend = "memory"
	cfg.Search.Backend = "memory"
	cfg.Indexer.BatchSize = 1
	cfg.Indexer.BatchTimeout = 20 * time.Millisecond
	cfg.Queue.DequeueTimeout = 20 * time.Millisecond
	cfg.Sync.Interval = time.Hour
	cfg.Sync.RetryDelay = 10 * time.Millisecond
	cfg.Daemon.SocketPath = filepath.Join("/tmp", fmt.Sprintf("indexsync-cli-%d.sock", time.Now().UnixNano()))
	cfg.Daemon.PIDPath = filepath.Join(dir, "indexsync.pid")
	cfg.Logging.File = filepath.Join(dir, "indexsync.log")

	path := filepath.Join(dir, "indexsync.yaml")
	require.NoError(t, cfg.WriteYAML(path))
	return cfg, path
}

// startTestDaemon serves an in-memory pipeline for cfg until the test ends.
func startTestDaemon(t *testing.T, cfg *config.Config) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := buildPipeline(cfg, logger)
	require.NoError(t, err)

	d, err := daemon.NewDaemon(daemon.FromConfig(cfg.Daemon), p.Backend(), logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
		_ = p.Close()
	})

	client := daemon.NewClient(daemon.FromConfig(cfg.Daemon))
	require.Eventually(t, client.IsRunning, 3*time.Second, 10*time.Millisecond)
	return p
}
