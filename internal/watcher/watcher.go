package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/indexsync/internal/config"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/orchestrator"
)

// Applier receives configuration changes.
type Applier interface {
	UpdateConfig(patch orchestrator.ConfigPatch) (config.SyncConfig, error)
}

// Options configures a ConfigWatcher.
type Options struct {
	// Debounce coalesces events arriving within this window.
	Debounce time.Duration
	// PollInterval is used when fsnotify is unavailable or ForcePolling is set.
	PollInterval time.Duration
	ForcePolling bool
	Logger       *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:     200 * time.Millisecond,
		PollInterval: 2 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ConfigWatcher watches one configuration file.
type ConfigWatcher struct {
	path    string
	applier Applier
	opts    Options
	logger  *slog.Logger

	reloads atomic.Int64

	mu      sync.Mutex
	timer   *time.Timer
	lastErr error
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher(path string, applier Applier, opts Options) *ConfigWatcher {
	opts = opts.WithDefaults()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &ConfigWatcher{
		path:    path,
		applier: applier,
		opts:    opts,
		logger:  opts.Logger.With(slog.String("component", "config_watcher")),
	}
}

// Path returns the watched file.
func (w *ConfigWatcher) Path() string {
	return w.path
}

// Reloads returns how many reloads were applied successfully.
func (w *ConfigWatcher) Reloads() int64 {
	return w.reloads.Load()
}

// LastError returns the error of the most recent reload, if any.
func (w *ConfigWatcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Run watches until ctx is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	defer w.cancelPending()

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fsw.Add(filepath.Dir(w.path)); err == nil {
				w.logger.Info("watching config", slog.String("path", w.path))
				return w.runFsnotify(ctx, fsw)
			}
			_ = fsw.Close()
		}
		w.logger.Warn("fsnotify unavailable, polling config",
			slog.String("error", err.Error()),
			slog.Duration("interval", w.opts.PollInterval))
	}
	return w.runPolling(ctx)
}

func (w *ConfigWatcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher) error {
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", slog.String("error", err.Error()))
		}
	}
}

type snapshot struct {
	modTime time.Time
	size    int64
	exists  bool
}

func (w *ConfigWatcher) stat() snapshot {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}
	}
	return snapshot{modTime: info.ModTime(), size: info.Size(), exists: true}
}

func (w *ConfigWatcher) runPolling(ctx context.Context) error {
	last := w.stat()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur := w.stat()
			if cur != last {
				last = cur
				if cur.exists {
					w.schedule()
				}
			}
		}
	}
}

// schedule (re)starts the debounce window.
func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, func() {
		if err := w.Reload(); err != nil {
			w.logger.Error("config reload failed", serrors.LogAttrs(err)...)
		}
	})
}

func (w *ConfigWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Reload reads the file and applies its runtime-mutable settings.
func (w *ConfigWatcher) Reload() error {
	cfg, err := config.Load(w.path)
	if err == nil {
		_, err = w.applier.UpdateConfig(PatchFromConfig(cfg))
	}

	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	if err != nil {
		return err
	}

	w.reloads.Add(1)
	w.logger.Info("config reloaded", slog.String("path", w.path))
	return nil
}

// PatchFromConfig builds a patch carrying every runtime-mutable setting.
func PatchFromConfig(cfg *config.Config) orchestrator.ConfigPatch {
	s := cfg.Sync
	batch := cfg.Indexer.BatchSize
	return orchestrator.ConfigPatch{
		Enabled:        &s.Enabled,
		BatchSize:      &s.BatchSize,
		Interval:       &s.Interval,
		MaxRetries:     &s.MaxRetries,
		RetryDelay:     &s.RetryDelay,
		IndexBatchSize: &batch,
	}
}
