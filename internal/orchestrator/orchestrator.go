// Package orchestrator supervises the sync pipeline: it owns the indexer's
// lifecycle, drives full reindexes and runs the periodic incremental sync.
//
// State machine: stopped -> initializing -> running <-> syncing -> stopped.
// The syncing guard is an in-process flag; it does not stop a second
// process from syncing the same index.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/indexsync/internal/config"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/indexer"
	"github.com/Aman-CERP/indexsync/internal/mapping"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
	"github.com/Aman-CERP/indexsync/internal/source"
)

// maxRecentErrors bounds Status.Errors.
const maxRecentErrors = 50

// probeTimeout bounds each dependency probe.
const probeTimeout = 5 * time.Second

// State is the orchestrator lifecycle state.
type State string

const (
	StateStopped      State = "stopped"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateSyncing      State = "syncing"
)

// Queue is the part of the work queue the orchestrator inspects.
type Queue interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (queue.Stats, error)
	RecoverProcessing(ctx context.Context) (int, error)
}

// Indexer is the batching consumer the orchestrator supervises.
type Indexer interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Running() bool
	Stats() indexer.Stats
	SetBatchSize(n int)
	SetMaxRetries(n int)
}

// Feed is the live change subscriber, reported in stats and health.
type Feed interface {
	Stats() source.FeedStats
	Connected() bool
}

// Deps are the collaborators, constructed once per process.
type Deps struct {
	Queue   Queue
	Gateway search.Gateway
	Indexer Indexer
	// Source may be nil, in which case full reindexes only recreate the index.
	Source source.Scanner
	Mapper *mapping.Mapper
	// Feed is nil when no change feed is configured.
	Feed   Feed
	Logger *slog.Logger
}

// Orchestrator coordinates the pipeline. Create one per process.
type Orchestrator struct {
	queue   Queue
	gateway search.Gateway
	indexer Indexer
	source  source.Scanner
	mapper  *mapping.Mapper
	feed    Feed
	logger  *slog.Logger

	progress *progress

	mu          sync.Mutex
	state       State
	cfg         config.SyncConfig
	syncing     bool
	timer       *time.Timer
	timerGen    uint64
	nextSyncAt  time.Time
	lastSyncAt  time.Time
	totalSynced int64
	errors      []string
	lastResult  *SyncResult

	runCtx context.Context
	cancel context.CancelFunc
	// bg tracks timer ticks and background reindexes.
	bg sync.WaitGroup
}

// New creates a stopped orchestrator.
func New(deps Deps, cfg config.SyncConfig) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mapper := deps.Mapper
	if mapper == nil {
		mapper = mapping.NewMapper()
	}
	return &Orchestrator{
		queue:    deps.Queue,
		gateway:  deps.Gateway,
		indexer:  deps.Indexer,
		source:   deps.Source,
		mapper:   mapper,
		feed:     deps.Feed,
		logger:   logger.With(slog.String("component", "orchestrator")),
		progress: newProgress(),
		state:    StateStopped,
		cfg:      cfg,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Config returns the current sync configuration.
func (o *Orchestrator) Config() config.SyncConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// Initialize probes the queue and search engine, recovers jobs stranded in
// processing, starts the indexer and arms the periodic timer when enabled.
// Calling it again while initialized logs a warning and returns nil.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateStopped {
		o.mu.Unlock()
		o.logger.Warn("sync service already initialized")
		return nil
	}
	o.state = StateInitializing
	o.mu.Unlock()

	if err := o.probe(ctx); err != nil {
		o.setState(StateStopped)
		o.recordError(err.Error())
		o.logger.Error("initialization failed", serrors.LogAttrs(err)...)
		return err
	}

	recovered, err := o.queue.RecoverProcessing(ctx)
	if err != nil {
		o.setState(StateStopped)
		return serrors.DependencyUnavailable("work queue", err)
	}
	if recovered > 0 {
		o.logger.Warn("recovered jobs left in processing", slog.Int("count", recovered))
	}

	// The pipeline outlives the caller's context; Shutdown ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	o.mu.Lock()
	o.runCtx, o.cancel = runCtx, cancel
	o.indexer.Start(runCtx)
	o.state = StateRunning
	cfg := o.cfg
	if cfg.Enabled {
		o.armLocked()
	}
	o.mu.Unlock()

	o.logger.Info("sync service initialized",
		slog.Bool("sync_enabled", cfg.Enabled),
		slog.Duration("interval", cfg.Interval))
	return nil
}

// probe checks both dependencies concurrently.
func (o *Orchestrator) probe(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, probeTimeout)
		defer cancel()
		if err := o.queue.Ping(pctx); err != nil {
			return serrors.DependencyUnavailable("work queue", err)
		}
		return nil
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, probeTimeout)
		defer cancel()
		if err := o.gateway.CreateIndex(pctx); err != nil {
			return serrors.DependencyUnavailable("search engine", err)
		}
		if h := o.gateway.Health(pctx); !h.Up() {
			return serrors.DependencyUnavailable("search engine", nil).
				WithDetail("status", string(h.Status))
		}
		return nil
	})

	return g.Wait()
}

// Shutdown disarms the timer, waits for background syncs, stops the indexer
// (which flushes) and marks the orchestrator stopped. Safe to call at any
// time, including before Initialize.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.disarmLocked()
	wasRunning := o.state != StateStopped
	o.state = StateStopped
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.bg.Wait()

	err := o.indexer.Stop(ctx)
	if err != nil {
		o.recordError(err.Error())
	}
	if wasRunning {
		o.logger.Info("sync service stopped")
	}
	return err
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// armLocked (re)schedules the next incremental sync. Must hold mu.
func (o *Orchestrator) armLocked() {
	if o.timer != nil {
		o.timer.Stop()
	}
	interval := o.cfg.Interval
	if interval <= 0 {
		return
	}
	o.timerGen++
	gen := o.timerGen
	o.nextSyncAt = time.Now().Add(interval)
	o.timer = time.AfterFunc(interval, func() { o.tick(gen) })
}

// disarmLocked cancels the periodic timer. Must hold mu.
func (o *Orchestrator) disarmLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.timerGen++
	o.nextSyncAt = time.Time{}
}

func (o *Orchestrator) tick(gen uint64) {
	o.mu.Lock()
	if gen != o.timerGen || o.state == StateStopped || o.state == StateInitializing {
		o.mu.Unlock()
		return
	}
	ctx := o.runCtx
	o.bg.Add(1)
	o.mu.Unlock()

	defer o.bg.Done()

	res := o.IncrementalSync(ctx)
	if !res.Success {
		o.logger.Warn("periodic sync did not complete", slog.Any("errors", res.Errors))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen == o.timerGen && o.state != StateStopped && o.cfg.Enabled {
		o.armLocked()
	}
}

// acquire takes the syncing guard. It reports false when a sync is running.
func (o *Orchestrator) acquire(operation string, stage Stage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.syncing {
		return false
	}
	o.syncing = true
	if o.state == StateRunning {
		o.state = StateSyncing
	}
	o.progress.begin(operation, stage)
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseLocked()
}

func (o *Orchestrator) releaseLocked() {
	o.syncing = false
	if o.state == StateSyncing {
		o.state = StateRunning
	}
}

func (o *Orchestrator) recordError(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recordErrorLocked(msg)
}

func (o *Orchestrator) recordErrorLocked(msg string) {
	o.errors = append(o.errors, msg)
	if over := len(o.errors) - maxRecentErrors; over > 0 {
		o.errors = append([]string(nil), o.errors[over:]...)
	}
}

// IncrementalSync is a reconciliation tick. It never returns an error; a
// busy orchestrator or an undrained queue yields Success false.
func (o *Orchestrator) IncrementalSync(ctx context.Context) SyncResult {
	start := time.Now()
	if !o.acquire("incremental_sync", StageDraining) {
		return SyncResult{Errors: []string{serrors.AlreadySyncing().Message}}
	}
	defer o.release()

	cfg := o.Config()
	fail := func(err error) SyncResult {
		if ctx.Err() == nil {
			o.recordError(err.Error())
		}
		o.progress.fail(err.Error())
		return SyncResult{Errors: []string{err.Error()}, Duration: time.Since(start)}
	}

	before, err := o.queue.Stats(ctx)
	if err != nil {
		return fail(err)
	}

	after := before
	if before.Pending > 0 || before.Processing > 0 {
		err = serrors.Retry(ctx, serrors.ConstantRetryConfig(cfg.MaxRetries, cfg.RetryDelay), func() error {
			s, err := o.queue.Stats(ctx)
			if err != nil {
				return err
			}
			if s.Pending > 0 || s.Processing > 0 {
				return errNotDrained
			}
			after = s
			return nil
		})
		if err != nil {
			return fail(err)
		}
	}

	delta := max(after.Completed-before.Completed, 0)

	o.mu.Lock()
	o.totalSynced += int64(delta)
	o.lastSyncAt = time.Now()
	o.mu.Unlock()
	o.progress.set(StageDone, 100)

	o.logger.Info("incremental sync finished",
		slog.Int("synced", delta),
		slog.Int("pending_before", before.Pending))
	return SyncResult{Success: true, Count: delta, Errors: []string{}, Duration: time.Since(start)}
}

var errNotDrained = serrors.New(serrors.ErrCodeInternal, "queue not drained", nil)

// TriggerManualSync runs one incremental sync and restarts the periodic
// timer from now.
func (o *Orchestrator) TriggerManualSync(ctx context.Context) SyncResult {
	res := o.IncrementalSync(ctx)

	o.mu.Lock()
	if o.cfg.Enabled && (o.state == StateRunning || o.state == StateSyncing) {
		o.armLocked()
	}
	o.mu.Unlock()
	return res
}

// UpdateConfig merges patch into the sync configuration. Flipping Enabled
// arms or disarms the periodic timer; a new interval re-arms it.
func (o *Orchestrator) UpdateConfig(patch ConfigPatch) (config.SyncConfig, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := patch.apply(o.cfg)
	if err := next.Validate(); err != nil {
		return o.cfg, serrors.ValidationError("invalid sync config", err)
	}
	if patch.IndexBatchSize != nil && *patch.IndexBatchSize < 1 {
		return o.cfg, serrors.ValidationError("index batch size must be at least 1", nil)
	}
	prev := o.cfg
	o.cfg = next

	if next.MaxRetries != prev.MaxRetries {
		o.indexer.SetMaxRetries(next.MaxRetries)
	}
	if patch.IndexBatchSize != nil {
		o.indexer.SetBatchSize(*patch.IndexBatchSize)
	}

	active := o.state == StateRunning || o.state == StateSyncing
	switch {
	case !next.Enabled:
		o.disarmLocked()
	case active && (!prev.Enabled || next.Interval != prev.Interval):
		o.armLocked()
	}

	o.logger.Info("sync config updated",
		slog.Bool("enabled", next.Enabled),
		slog.Int("batch_size", next.BatchSize),
		slog.Duration("interval", next.Interval),
		slog.Int("max_retries", next.MaxRetries))
	return next, nil
}

// Status returns the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		State:       o.state,
		IsSyncing:   o.syncing,
		TotalSynced: o.totalSynced,
		Errors:      append([]string{}, o.errors...),
		Progress:    o.progress.snapshot(),
		LastResult:  o.lastResult,
	}
	if !o.lastSyncAt.IsZero() {
		t := o.lastSyncAt
		st.LastSyncAt = &t
	}
	if !o.nextSyncAt.IsZero() {
		t := o.nextSyncAt
		st.NextSyncAt = &t
	}
	return st
}

// Stats aggregates indexer, queue and sync counters.
func (o *Orchestrator) Stats(ctx context.Context) Stats {
	out := Stats{
		Indexer: o.indexer.Stats(),
		Sync:    o.Status(),
	}
	qs, err := o.queue.Stats(ctx)
	if err != nil {
		out.QueueError = err.Error()
	} else {
		out.Queue = qs
	}
	if o.feed != nil {
		fs := o.feed.Stats()
		out.Feed = &fs
	}
	return out
}

// HealthCheck probes the queue and the search engine concurrently and
// combines them with the indexer and lifecycle state.
func (o *Orchestrator) HealthCheck(ctx context.Context) Health {
	var (
		h   Health
		hmu sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, probeTimeout)
		defer cancel()
		err := o.queue.Ping(pctx)

		hmu.Lock()
		defer hmu.Unlock()
		h.QueueUp = err == nil
		if err != nil {
			h.Errors = append(h.Errors, err.Error())
		}
		return nil
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, probeTimeout)
		defer cancel()
		sh := o.gateway.Health(pctx)

		hmu.Lock()
		defer hmu.Unlock()
		h.Search = sh
		h.SearchEngineUp = sh.Up()
		return nil
	})
	_ = g.Wait()

	state := o.State()
	h.IndexerRunning = o.indexer.Running()
	h.SyncServiceInitialized = state == StateRunning || state == StateSyncing
	h.State = state
	feedDown := false
	if o.feed != nil {
		up := o.feed.Connected()
		h.FeedConnected = &up
		if !up {
			feedDown = true
			h.Errors = append(h.Errors, "change feed is not connected")
		}
	}

	switch {
	case !h.SearchEngineUp || !h.QueueUp:
		h.Status = HealthUnhealthy
	case !h.IndexerRunning || !h.SyncServiceInitialized || h.Search.Status != search.StatusGreen || feedDown:
		h.Status = HealthDegraded
	default:
		h.Status = HealthHealthy
	}
	return h
}
