// Package indexer consumes the work queue, accumulates jobs into bounded
// batches and flushes them to the search engine.
//
// A batch flushes on whichever comes first: BatchSize jobs admitted, or
// BatchTimeout elapsed since the first job of the batch was admitted.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/mapping"
	"github.com/Aman-CERP/indexsync/internal/queue"
)

// BulkFailureMessage is recorded on every job of a rejected batch.
const BulkFailureMessage = "bulk indexing failed"

// JobQueue is the part of the work queue the indexer drives.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, errMsg string, maxRetries int) error
}

// Sink receives flushed batches.
type Sink interface {
	BulkUpsert(ctx context.Context, docs []mapping.Document) error
}

// Config configures batching and the consume loop.
type Config struct {
	BatchSize      int
	BatchTimeout   time.Duration
	DequeueTimeout time.Duration
	MaxRetries     int
	// ErrorBackoff is the pause after an infrastructure error.
	ErrorBackoff time.Duration
}

// DefaultConfig returns the default batching settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:      50,
		BatchTimeout:   500 * time.Millisecond,
		DequeueTimeout: time.Second,
		MaxRetries:     3,
		ErrorBackoff:   5 * time.Second,
	}
}

type entry struct {
	job *queue.Job
	doc mapping.Document
}

// Indexer is the batching consumer. Exactly one should run per queue.
type Indexer struct {
	queue  JobQueue
	sink   Sink
	mapper *mapping.Mapper
	logger *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	// flushMu serializes flushes; it is always taken before mu.
	flushMu sync.Mutex

	mu    sync.Mutex
	batch []entry
	timer *time.Timer
	gen   uint64 // invalidates alarms armed for an already-taken batch
	stats stats
	// engineDownUntil pauses dequeueing after the sink reported NotConnected.
	engineDownUntil time.Time

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an indexer. A nil logger falls back to slog.Default().
func New(q JobQueue, sink Sink, mapper *mapping.Mapper, cfg Config, logger *slog.Logger) *Indexer {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaults.BatchTimeout
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = defaults.DequeueTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Indexer{
		queue:  q,
		sink:   sink,
		mapper: mapper,
		logger: logger.With(slog.String("component", "indexer")),
		cfg:    cfg,
	}
}

func (ix *Indexer) config() Config {
	ix.cfgMu.RLock()
	defer ix.cfgMu.RUnlock()
	return ix.cfg
}

// SetBatchSize changes the size trigger for subsequent admissions.
func (ix *Indexer) SetBatchSize(n int) {
	if n <= 0 {
		return
	}
	ix.cfgMu.Lock()
	defer ix.cfgMu.Unlock()
	ix.cfg.BatchSize = n
}

// SetMaxRetries changes the retry bound passed to the queue on failure.
func (ix *Indexer) SetMaxRetries(n int) {
	if n < 0 {
		return
	}
	ix.cfgMu.Lock()
	defer ix.cfgMu.Unlock()
	ix.cfg.MaxRetries = n
}

// Start launches the consume loop. Calling it while running is a no-op.
func (ix *Indexer) Start(ctx context.Context) {
	ix.runMu.Lock()
	defer ix.runMu.Unlock()

	if ix.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	ix.running = true
	ix.cancel = cancel
	ix.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ix.consume(runCtx)
	}(ix.done)

	ix.logger.Info("indexer started")
}

// Running reports whether the consume loop is active.
func (ix *Indexer) Running() bool {
	ix.runMu.Lock()
	defer ix.runMu.Unlock()
	return ix.running
}

// Stop ends the consume loop, waits for it to exit and flushes whatever is
// left in the batch. Safe to call when not running.
func (ix *Indexer) Stop(ctx context.Context) error {
	ix.runMu.Lock()
	if ix.running {
		ix.cancel()
		<-ix.done
		ix.running = false
		ix.logger.Info("indexer stopped")
	}
	ix.runMu.Unlock()

	return ix.Flush(ctx)
}

// consume is the cooperative loop: dequeue with a bounded timeout so the
// stop signal is observed promptly, then admit.
func (ix *Indexer) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if wait := ix.enginePause(); wait > 0 {
			ix.logger.Warn("search engine unreachable, pausing consumer", slog.Duration("pause", wait))
			if !ix.sleep(ctx, wait) {
				return
			}
			continue
		}

		cfg := ix.config()
		job, err := ix.queue.Dequeue(ctx, cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ix.logger.Error("dequeue failed", serrors.LogAttrs(err)...)
			if !ix.sleep(ctx, cfg.ErrorBackoff) {
				return
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := ix.Admit(ctx, job); err != nil {
			ix.logger.Error("admit failed", append(serrors.LogAttrs(err), slog.String("job_id", job.ID))...)
			// Rejected batches were already requeued per job; only back off
			// when the queue itself is unreachable.
			if serrors.GetCode(err) != serrors.ErrCodeBulkIndexFailed {
				if !ix.sleep(ctx, cfg.ErrorBackoff) {
					return
				}
			}
		}
	}
}

// enginePause returns how long dequeueing stays paused, or zero.
func (ix *Indexer) enginePause() time.Duration {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return time.Until(ix.engineDownUntil)
}

func (ix *Indexer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Admit maps job and adds it to the batch, flushing when the batch is full.
// Jobs that cannot be mapped go straight to failed without retries.
func (ix *Indexer) Admit(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	cfg := ix.config()

	doc, err := ix.mapper.MapJob(*job)
	if err != nil {
		ix.mu.Lock()
		ix.stats.recordFailure(time.Since(start))
		ix.mu.Unlock()

		ix.logger.Warn("job cannot be mapped",
			append(serrors.LogAttrs(err), slog.String("job_id", job.ID), slog.String("entity", job.Entity))...)
		return ix.queue.Fail(context.WithoutCancel(ctx), job.ID, err.Error(), 0)
	}

	ix.mu.Lock()
	ix.batch = append(ix.batch, entry{job: job, doc: doc})
	ix.stats.recordSuccess(time.Since(start))
	size := len(ix.batch)
	if size == 1 && size < cfg.BatchSize {
		// A job dequeued just as the engine went down waits out the pause.
		ix.armLocked(max(cfg.BatchTimeout, time.Until(ix.engineDownUntil)))
	}
	ix.mu.Unlock()

	ix.logger.Debug("job admitted",
		slog.String("job_id", job.ID),
		slog.Int("batch_size", size))

	if size >= cfg.BatchSize {
		return ix.Flush(ctx)
	}
	return nil
}

// armLocked schedules the timeout flush for the current batch. Must hold mu.
func (ix *Indexer) armLocked(d time.Duration) {
	if ix.timer != nil {
		ix.timer.Stop()
	}
	gen := ix.gen
	ix.timer = time.AfterFunc(d, func() { ix.onTimeout(gen) })
}

func (ix *Indexer) onTimeout(gen uint64) {
	if err := ix.flush(context.Background(), &gen); err != nil {
		ix.logger.Error("timed flush failed", serrors.LogAttrs(err)...)
	}
}

// take removes the current batch and disarms its alarm. Must hold mu.
func (ix *Indexer) takeLocked() []entry {
	batch := ix.batch
	ix.batch = nil
	ix.gen++
	if ix.timer != nil {
		ix.timer.Stop()
		ix.timer = nil
	}
	return batch
}

// Flush sends the current batch to the sink. On success every job is
// completed; on failure every job is failed with BulkFailureMessage and a
// BulkIndexFailure error is returned. When the sink is unreachable the
// consume loop also pauses for ErrorBackoff, so an outage does not spend
// every job's retries in a few seconds.
func (ix *Indexer) Flush(ctx context.Context) error {
	return ix.flush(ctx, nil)
}

// flush takes the batch only while gen, when given, still names it. An
// alarm that lost the race to a size-triggered flush leaves the next batch
// alone.
func (ix *Indexer) flush(ctx context.Context, gen *uint64) error {
	ix.flushMu.Lock()
	defer ix.flushMu.Unlock()

	ix.mu.Lock()
	if gen != nil && *gen != ix.gen {
		ix.mu.Unlock()
		return nil
	}
	batch := ix.takeLocked()
	ix.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	docs := make([]mapping.Document, len(batch))
	for i, e := range batch {
		docs[i] = e.doc
	}

	// Queue bookkeeping must finish even if the caller is shutting down.
	bctx := context.WithoutCancel(ctx)
	cfg := ix.config()

	if err := ix.sink.BulkUpsert(ctx, docs); err != nil {
		// Pause before requeueing so a job popped straight back waits too.
		ix.mu.Lock()
		ix.stats.batchesFailed++
		if errors.Is(err, serrors.ErrNotConnected) {
			ix.engineDownUntil = time.Now().Add(cfg.ErrorBackoff)
		}
		ix.mu.Unlock()

		for _, e := range batch {
			if ferr := ix.queue.Fail(bctx, e.job.ID, BulkFailureMessage, cfg.MaxRetries); ferr != nil {
				ix.logger.Error("failed to record job failure",
					append(serrors.LogAttrs(ferr), slog.String("job_id", e.job.ID))...)
			}
		}
		ix.logger.Error("batch rejected", append(serrors.LogAttrs(err), slog.Int("batch_size", len(batch)))...)
		return serrors.BulkIndexFailure(len(batch), err)
	}

	ix.mu.Lock()
	ix.stats.batchesFlushed++
	ix.engineDownUntil = time.Time{}
	ix.mu.Unlock()

	for _, e := range batch {
		if err := ix.queue.Complete(bctx, e.job.ID); err != nil {
			ix.logger.Error("failed to complete job",
				append(serrors.LogAttrs(err), slog.String("job_id", e.job.ID))...)
		}
	}

	ix.logger.Info("batch flushed", slog.Int("batch_size", len(batch)))
	return nil
}
