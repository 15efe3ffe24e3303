package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/daemon"
	"github.com/Aman-CERP/indexsync/internal/logging"
	"github.com/Aman-CERP/indexsync/internal/preflight"
	"github.com/Aman-CERP/indexsync/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync pipeline and its control socket",
		Long: `Run the pipeline in the foreground: the queue consumer, the periodic
incremental sync, the optional NATS change feed and the control socket.

The configuration file is watched; changes to the sync section are applied
without a restart. Stop with Ctrl+C or SIGTERM; the current batch is flushed
before exit.`,
		Annotations: map[string]string{annotationOwnsLogging: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), background)
		},
	}

	cmd.Flags().BoolVar(&background, "background", false, "Log to file only (used by 'indexsync start')")
	_ = cmd.Flags().MarkHidden("background")

	return cmd
}

func serveLoggingConfig(cfg *config.Config) logging.Config {
	lc := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	}
	if lc.FilePath == "" {
		lc.FilePath = logging.DefaultLogPath()
	}
	if debugMode {
		lc.Level = "debug"
	}
	return lc
}

func runServe(ctx context.Context, background bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := serveLoggingConfig(cfg)
	if background {
		cleanup, err := logging.SetupDaemonMode(logCfg)
		if err != nil {
			return err
		}
		defer cleanup()
	} else {
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return err
		}
		defer cleanup()
		slog.SetDefault(logger)
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := preflight.New(cfg).RunAll(ctx)
	for _, r := range checks {
		if r.Status != preflight.StatusPass {
			logger.Warn("preflight check", slog.String("check", r.Name),
				slog.String("status", r.Status.String()), slog.String("message", r.Message))
		}
	}
	if err := preflight.Err(checks); err != nil {
		return err
	}

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if p.feed != nil {
		if err := p.feed.Start(); err != nil {
			return err
		}
	}

	d, err := daemon.NewDaemon(daemon.FromConfig(cfg.Daemon), p.Backend(), logger)
	if err != nil {
		return err
	}

	if path := config.ResolvePath(configPath); fileExists(path) {
		w := watcher.NewConfigWatcher(path, p.orch, watcher.Options{Logger: logger})
		go func() { _ = w.Run(ctx) }()
	}

	logger.Info("indexsync serving",
		slog.String("socket", cfg.Daemon.SocketPath),
		slog.String("queue", cfg.Queue.Name),
		slog.String("store", cfg.Store.Backend),
		slog.String("search", cfg.Search.Backend))

	return d.Run(ctx)
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the pipeline",
		Long: `Start the pipeline. When no daemon is serving, one is launched in the
background with 'indexsync serve'. When a daemon is serving but its pipeline
was stopped, the pipeline is initialized again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd)
		},
	}
}

func runStart(cmd *cobra.Command) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	if client.IsRunning() {
		status, err := client.Start(cmd.Context())
		if err != nil {
			return err
		}
		return newRenderer(cmd.OutOrStdout()).RenderStatus(*status)
	}

	pid, err := spawnDaemon(client)
	if err != nil {
		return err
	}
	if jsonOutput {
		return newRenderer(cmd.OutOrStdout()).RenderJSON(map[string]int{"pid": pid})
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid: %d)\n", pid)
	return nil
}

// spawnDaemon re-executes the binary as a detached 'serve --background'
// and waits for the control socket to answer.
func spawnDaemon(client *daemon.Client) (int, error) {
	execPath, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"serve", "--background"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if debugMode {
		args = append(args, "--debug")
	}

	bg := exec.Command(execPath, args...)
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bg.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice early exits.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	for range 50 {
		select {
		case err := <-done:
			if err != nil {
				return 0, fmt.Errorf("daemon exited during startup: %w (see 'indexsync logs')", err)
			}
			return 0, fmt.Errorf("daemon exited during startup (see 'indexsync logs')")
		case <-time.After(100 * time.Millisecond):
		}
		if client.IsRunning() {
			return bg.Process.Pid, nil
		}
	}
	return 0, fmt.Errorf("daemon did not answer within 5s (see 'indexsync logs')")
}

func newStopCmd() *cobra.Command {
	var stopDaemon bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the pipeline",
		Long: `Stop the pipeline: the periodic sync is disarmed and the consumer stops
after flushing its current batch. The daemon keeps serving the control socket.

With --daemon the serving process itself is sent SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd, stopDaemon)
		},
	}

	cmd.Flags().BoolVar(&stopDaemon, "daemon", false, "Terminate the daemon process")
	return cmd
}

func runStop(cmd *cobra.Command, stopDaemon bool) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}

	if stopDaemon {
		rec, err := daemon.NewProcessFile(daemon.FromConfig(cfg.Daemon).PIDPath).Terminate()
		if errors.Is(err, daemon.ErrNotServing) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Daemon stopping (pid %d, %s, up %s)\n",
			rec.PID, rec.Version, rec.Uptime().Round(time.Second))
		return nil
	}

	status, err := client.Stop(cmd.Context())
	if err != nil {
		return err
	}
	return newRenderer(cmd.OutOrStdout()).RenderStatus(*status)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
