// Package queue implements the durable work queue of change jobs.
//
// A queue named N is four lists in the list store: N (pending),
// N:processing, N:completed and N:failed. A job moves between them only
// through atomic store moves, so its id is always in exactly one list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/liststore"
)

// Queue is a FIFO job queue over a liststore.Store.
type Queue struct {
	store  liststore.Store
	name   string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a queue named name over store.
func New(store liststore.Store, name string, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		name:   name,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(slog.String("queue", name))
	return q
}

// Name returns the logical queue name.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) pendingKey() string    { return q.name }
func (q *Queue) processingKey() string { return q.name + ":processing" }
func (q *Queue) completedKey() string  { return q.name + ":completed" }
func (q *Queue) failedKey() string     { return q.name + ":failed" }

func (q *Queue) key(list string) (string, error) {
	switch list {
	case ListPending:
		return q.pendingKey(), nil
	case ListProcessing:
		return q.processingKey(), nil
	case ListCompleted:
		return q.completedKey(), nil
	case ListFailed:
		return q.failedKey(), nil
	}
	return "", serrors.UnknownQueue(list)
}

// Ping reports store connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.store.Ping(ctx)
}

// Enqueue assigns an id, timestamp and zero retry count to nj and appends
// it to pending.
func (q *Queue) Enqueue(ctx context.Context, nj NewJob) (string, error) {
	if nj.Entity == "" {
		return "", serrors.ValidationError("job entity is required", nil)
	}
	if !nj.Operation.Valid() {
		return "", serrors.ValidationError(
			fmt.Sprintf("job operation must be INSERT, UPDATE or DELETE, got %q", nj.Operation), nil)
	}
	if len(nj.Payload) == 0 || !json.Valid(nj.Payload) {
		return "", serrors.ValidationError("job payload must be valid JSON", nil)
	}

	job := Job{
		ID:         uuid.NewString(),
		Entity:     nj.Entity,
		Operation:  nj.Operation,
		Payload:    nj.Payload,
		EnqueuedAt: q.now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", serrors.InternalError("failed to encode job", err)
	}

	if err := q.store.PushTail(ctx, q.pendingKey(), raw); err != nil {
		return "", err
	}

	q.logger.Debug("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("entity", job.Entity),
		slog.String("operation", string(job.Operation)))
	return job.ID, nil
}

// Dequeue pops the head of pending into processing, waiting up to timeout.
// Returns nil, nil on timeout.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	raw, err := q.store.PopHeadPushTail(ctx, q.pendingKey(), q.processingKey(), timeout)
	if err != nil || raw == nil {
		return nil, err
	}

	job, err := decodeJob(raw)
	if err != nil {
		// Unreadable records cannot be completed by id; park them in failed.
		q.logger.Error("dropping undecodable job to failed", slog.String("error", err.Error()))
		if _, moveErr := q.store.MoveFirst(ctx, q.processingKey(), q.failedKey(), raw, nil); moveErr != nil {
			return nil, moveErr
		}
		return nil, nil
	}
	return job, nil
}

// findProcessing returns the stored record of job id in processing.
func (q *Queue) findProcessing(ctx context.Context, id string) ([]byte, *Job, error) {
	items, err := q.store.ListAll(ctx, q.processingKey())
	if err != nil {
		return nil, nil, err
	}
	for _, raw := range items {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		if job.ID == id {
			return raw, job, nil
		}
	}
	return nil, nil, nil
}

// Complete moves job id from processing to completed. A job that is no
// longer in processing is logged and ignored.
func (q *Queue) Complete(ctx context.Context, id string) error {
	raw, _, err := q.findProcessing(ctx, id)
	if err != nil {
		return err
	}
	if raw == nil {
		q.logger.Warn("complete: job not in processing", slog.String("job_id", id))
		return nil
	}

	moved, err := q.store.MoveFirst(ctx, q.processingKey(), q.completedKey(), raw, nil)
	if err != nil {
		return err
	}
	if !moved {
		q.logger.Warn("complete: job left processing concurrently", slog.String("job_id", id))
	}
	return nil
}

// Fail removes job id from processing. While its retry count is below
// maxRetries the count is incremented and the job goes back to pending;
// otherwise it goes to failed with errMsg attached.
func (q *Queue) Fail(ctx context.Context, id, errMsg string, maxRetries int) error {
	raw, job, err := q.findProcessing(ctx, id)
	if err != nil {
		return err
	}
	if raw == nil {
		q.logger.Warn("fail: job not in processing", slog.String("job_id", id))
		return nil
	}

	job.Error = errMsg
	dst := q.failedKey()
	if job.RetryCount < maxRetries {
		job.RetryCount++
		dst = q.pendingKey()
	} else {
		failedAt := q.now().UTC()
		job.FailedAt = &failedAt
	}

	updated, err := json.Marshal(job)
	if err != nil {
		return serrors.InternalError("failed to encode job", err)
	}

	moved, err := q.store.MoveFirst(ctx, q.processingKey(), dst, raw, updated)
	if err != nil {
		return err
	}
	if !moved {
		q.logger.Warn("fail: job left processing concurrently", slog.String("job_id", id))
		return nil
	}

	if dst == q.pendingKey() {
		q.logger.Info("job requeued",
			slog.String("job_id", id),
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", maxRetries),
			slog.String("reason", errMsg))
	} else {
		q.logger.Warn("job failed permanently",
			slog.String("job_id", id),
			slog.Int("retry_count", job.RetryCount),
			slog.String("reason", errMsg))
	}
	return nil
}

// Stats returns the lengths of the four lists.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	for _, f := range []struct {
		key string
		dst *int
	}{
		{q.pendingKey(), &s.Pending},
		{q.processingKey(), &s.Processing},
		{q.completedKey(), &s.Completed},
		{q.failedKey(), &s.Failed},
	} {
		n, err := q.store.Length(ctx, f.key)
		if err != nil {
			return Stats{}, err
		}
		*f.dst = n
	}
	s.Total = s.Pending + s.Processing + s.Completed + s.Failed
	return s, nil
}

// Clear empties one list (pending, processing, completed or failed) and
// returns its prior length.
func (q *Queue) Clear(ctx context.Context, list string) (int, error) {
	key, err := q.key(list)
	if err != nil {
		return 0, err
	}
	n, err := q.store.DeleteList(ctx, key)
	if err != nil {
		return 0, err
	}
	q.logger.Info("queue cleared", slog.String("list", list), slog.Int("removed", n))
	return n, nil
}

// RetryAll moves every failed job back to pending with its retry count
// reset, and returns how many moved.
func (q *Queue) RetryAll(ctx context.Context) (int, error) {
	items, err := q.store.ListAll(ctx, q.failedKey())
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, raw := range items {
		job, err := decodeJob(raw)
		if err != nil {
			q.logger.Warn("retry: skipping undecodable failed job", slog.String("error", err.Error()))
			continue
		}
		job.RetryCount = 0
		job.Error = ""
		job.FailedAt = nil

		reset, err := json.Marshal(job)
		if err != nil {
			return requeued, serrors.InternalError("failed to encode job", err)
		}
		moved, err := q.store.MoveFirst(ctx, q.failedKey(), q.pendingKey(), raw, reset)
		if err != nil {
			return requeued, err
		}
		if moved {
			requeued++
		}
	}

	q.logger.Info("failed jobs requeued", slog.Int("count", requeued))
	return requeued, nil
}

// RecoverProcessing moves every job left in processing back to pending.
// Jobs stay in processing only if the previous consumer died mid-batch.
func (q *Queue) RecoverProcessing(ctx context.Context) (int, error) {
	recovered := 0
	for {
		raw, err := q.store.PopHeadPushTail(ctx, q.processingKey(), q.pendingKey(), 0)
		if err != nil {
			return recovered, err
		}
		if raw == nil {
			break
		}
		recovered++
	}
	if recovered > 0 {
		q.logger.Warn("recovered jobs from processing", slog.Int("count", recovered))
	}
	return recovered, nil
}

// List returns up to limit jobs of one list, head first. limit <= 0 means all.
func (q *Queue) List(ctx context.Context, list string, limit int) ([]Job, error) {
	key, err := q.key(list)
	if err != nil {
		return nil, err
	}
	items, err := q.store.ListAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	jobs := make([]Job, 0, len(items))
	for _, raw := range items {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}
