package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Daemon is a serving indexsync process: it owns the instance lock, the
// process record, the pipeline lifecycle and the control socket.
type Daemon struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger
	lock    *InstanceLock
	proc    *ProcessFile
}

// NewDaemon validates cfg and creates a daemon.
func NewDaemon(cfg Config, backend Backend, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if cfg.LockPath == "" {
		cfg.LockPath = cfg.PIDPath + ".lock"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		lock:    NewInstanceLock(cfg.LockPath),
		proc:    NewProcessFile(cfg.PIDPath),
	}, nil
}

// Run takes the instance lock, initializes the pipeline and serves until
// ctx is cancelled. The pipeline is then shut down, flushing the current
// batch, within the configured grace period. A pipeline that cannot
// initialize aborts startup.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = d.lock.Release() }()

	if err := d.proc.Record(d.cfg.SocketPath); err != nil {
		return err
	}
	defer func() { _ = d.proc.Clear() }()

	if err := d.backend.Pipeline.Initialize(ctx); err != nil {
		return err
	}

	srv := NewServer(d.cfg.SocketPath, d.cfg.Timeout, d.backend, d.logger)
	serveErr := srv.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := d.backend.Pipeline.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("pipeline shutdown failed", slog.String("error", err.Error()))
	}

	if errors.Is(serveErr, context.Canceled) {
		return nil
	}
	return serveErr
}
