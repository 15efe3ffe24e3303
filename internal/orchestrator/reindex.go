package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/mapping"
	"github.com/Aman-CERP/indexsync/internal/source"
)

// Progress bands of a full reindex.
const (
	progressRecreated = 10
	progressScanned   = 90
)

// FullReindex discards the index and rebuilds it by paging the source
// directly into the search engine, bypassing the queue. It fails fast with
// AlreadySyncing when a sync is running. Per-page failures are collected in
// the result; only index recreation and cancellation return an error.
func (o *Orchestrator) FullReindex(ctx context.Context) (*SyncResult, error) {
	if !o.acquire("full_reindex", StageRecreating) {
		return nil, serrors.AlreadySyncing()
	}
	defer o.release()

	return o.reindex(ctx)
}

// StartReindex runs FullReindex in the background. The outcome is published
// through Status().LastResult. Shutdown cancels a running reindex.
func (o *Orchestrator) StartReindex() error {
	if !o.acquire("full_reindex", StageRecreating) {
		return serrors.AlreadySyncing()
	}

	o.mu.Lock()
	ctx := o.runCtx
	if ctx == nil || o.state == StateStopped {
		ctx = context.Background()
	}
	o.bg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.bg.Done()

		res, err := o.reindex(ctx)
		if err != nil {
			res = &SyncResult{Errors: []string{err.Error()}}
		}
		o.mu.Lock()
		o.lastResult = res
		o.releaseLocked()
		o.mu.Unlock()
	}()
	return nil
}

func (o *Orchestrator) reindex(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	cfg := o.Config()
	retry := serrors.ConstantRetryConfig(cfg.MaxRetries, cfg.RetryDelay)

	o.logger.Info("full reindex started")

	if err := o.gateway.RecreateIndex(ctx); err != nil {
		o.recordError(err.Error())
		o.progress.fail(err.Error())
		o.logger.Error("failed to recreate index", serrors.LogAttrs(err)...)
		return nil, err
	}
	o.progress.set(StageScanning, progressRecreated)

	var entities []string
	if o.source != nil {
		entities = o.source.Entities()
		o.progress.setTotal(o.countRecords(ctx, entities))
	}

	var (
		count int
		errs  = []string{}
	)
	for _, entity := range entities {
		n, entityErrs := o.reindexEntity(ctx, entity, cfg.BatchSize, retry)
		count += n
		errs = append(errs, entityErrs...)

		if err := ctx.Err(); err != nil {
			o.progress.fail(err.Error())
			return &SyncResult{Count: count, Errors: append(errs, err.Error()), Duration: time.Since(start)}, err
		}
	}

	o.progress.set(StageFinishing, progressScanned)

	o.mu.Lock()
	o.lastSyncAt = time.Now()
	o.totalSynced += int64(count)
	for _, e := range errs {
		o.recordErrorLocked(e)
	}
	o.mu.Unlock()

	o.progress.set(StageDone, 100)

	res := &SyncResult{
		Success:  len(errs) == 0,
		Count:    count,
		Errors:   errs,
		Duration: time.Since(start),
	}
	o.logger.Info("full reindex finished",
		slog.Int("count", count),
		slog.Int("errors", len(errs)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// countRecords sizes the scan for progress reporting. Zero means unknown.
func (o *Orchestrator) countRecords(ctx context.Context, entities []string) int {
	counter, ok := o.source.(source.Counter)
	if !ok {
		return 0
	}
	total := 0
	for _, e := range entities {
		n, err := counter.Count(ctx, e)
		if err != nil {
			return 0
		}
		total += n
	}
	return total
}

// reindexEntity pages one entity into the engine. A page that cannot be
// read ends the entity; a page that cannot be written is skipped.
func (o *Orchestrator) reindexEntity(ctx context.Context, entity string, pageSize int, retry serrors.RetryConfig) (int, []string) {
	var (
		count int
		errs  []string
	)

	for offset := 0; ; offset += pageSize {
		records, err := serrors.RetryWithResult(ctx, retry, func() ([]source.Record, error) {
			return o.source.ScanPage(ctx, entity, offset, pageSize)
		})
		if err != nil {
			if ctx.Err() == nil {
				errs = append(errs, fmt.Sprintf("%s page at offset %d: %v", entity, offset, err))
			}
			return count, errs
		}
		if len(records) == 0 {
			return count, errs
		}

		docs := make([]mapping.Document, 0, len(records))
		for _, rec := range records {
			doc, err := o.mapper.MapRecord(entity, rec)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s record at offset %d: %v", entity, offset, err))
				continue
			}
			docs = append(docs, doc)
		}

		if len(docs) > 0 {
			err = serrors.Retry(ctx, retry, func() error {
				return o.gateway.BulkUpsert(ctx, docs)
			})
			if err != nil {
				if ctx.Err() != nil {
					return count, errs
				}
				errs = append(errs, fmt.Sprintf("%s page at offset %d: %v", entity, offset, err))
			} else {
				count += len(docs)
			}
		}

		o.progress.advance(len(records), progressRecreated, progressScanned)
		o.logger.Debug("reindex page written",
			slog.String("entity", entity),
			slog.Int("offset", offset),
			slog.Int("batch_size", len(docs)))

		if len(records) < pageSize {
			return count, errs
		}
	}
}
