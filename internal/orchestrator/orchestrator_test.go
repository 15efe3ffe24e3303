package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexsync/internal/config"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/indexer"
	"github.com/Aman-CERP/indexsync/internal/liststore"
	"github.com/Aman-CERP/indexsync/internal/mapping"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
	"github.com/Aman-CERP/indexsync/internal/source"
)

// flakyGateway wraps a real gateway and injects failures.
type flakyGateway struct {
	search.Gateway

	mu           sync.Mutex
	bulkFailures int
	recreateErr  error
	down         bool
}

func (f *flakyGateway) BulkUpsert(ctx context.Context, docs []mapping.Document) error {
	f.mu.Lock()
	if f.bulkFailures > 0 {
		f.bulkFailures--
		f.mu.Unlock()
		return errors.New("bulk rejected")
	}
	f.mu.Unlock()
	return f.Gateway.BulkUpsert(ctx, docs)
}

func (f *flakyGateway) RecreateIndex(ctx context.Context) error {
	if f.recreateErr != nil {
		return f.recreateErr
	}
	return f.Gateway.RecreateIndex(ctx)
}

func (f *flakyGateway) Health(ctx context.Context) search.Health {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return search.Health{Status: search.StatusRed}
	}
	return f.Gateway.Health(ctx)
}

type harness struct {
	orch    *Orchestrator
	queue   *queue.Queue
	gateway *flakyGateway
	indexer *indexer.Indexer
	source  *source.MemorySource
}

func syncConfig() config.SyncConfig {
	return config.SyncConfig{
		Enabled:    false,
		BatchSize:  100,
		Interval:   time.Hour,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}
}

func newHarness(t *testing.T, cfg config.SyncConfig) *harness {
	t.Helper()

	store := liststore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	q := queue.New(store, "orch")

	bg, err := search.NewBleveGateway("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bg.Close() })
	gw := &flakyGateway{Gateway: bg}

	mapper := mapping.NewMapper()
	ix := indexer.New(q, gw, mapper, indexer.Config{
		BatchSize:      10,
		BatchTimeout:   20 * time.Millisecond,
		DequeueTimeout: 20 * time.Millisecond,
		MaxRetries:     cfg.MaxRetries,
		ErrorBackoff:   10 * time.Millisecond,
	}, nil)

	src := source.NewMemorySource()
	o := New(Deps{
		Queue:   q,
		Gateway: gw,
		Indexer: ix,
		Source:  src,
		Mapper:  mapper,
	}, cfg)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })

	return &harness{orch: o, queue: q, gateway: gw, indexer: ix, source: src}
}

func addListings(src *source.MemorySource, n int) {
	for i := 1; i <= n; i++ {
		src.Add("listing", source.Record{"id": i, "title": "Listing " + strconv.Itoa(i)})
	}
}

func enqueue(t *testing.T, q *queue.Queue, id int) {
	t.Helper()
	_, err := q.Enqueue(context.Background(), queue.NewJob{
		Entity:    "listing",
		Operation: queue.OpInsert,
		Payload:   json.RawMessage(`{"id":` + strconv.Itoa(id) + `,"title":"Lamp"}`),
	})
	require.NoError(t, err)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())

	// Given: a stopped orchestrator, shutdown is harmless
	assert.Equal(t, StateStopped, h.orch.State())
	require.NoError(t, h.orch.Shutdown(ctx))

	// When: it is initialized twice
	require.NoError(t, h.orch.Initialize(ctx))
	require.NoError(t, h.orch.Initialize(ctx))

	// Then: it runs the indexer and reports healthy
	assert.Equal(t, StateRunning, h.orch.State())
	assert.True(t, h.indexer.Running())

	health := h.orch.HealthCheck(ctx)
	assert.Equal(t, HealthHealthy, health.Status)
	assert.True(t, health.SearchEngineUp)
	assert.True(t, health.QueueUp)
	assert.True(t, health.IndexerRunning)
	assert.True(t, health.SyncServiceInitialized)

	// When: it shuts down
	require.NoError(t, h.orch.Shutdown(ctx))

	// Then: the indexer is stopped and health degrades
	assert.Equal(t, StateStopped, h.orch.State())
	assert.False(t, h.indexer.Running())
	assert.Equal(t, HealthDegraded, h.orch.HealthCheck(ctx).Status)
}

func TestInitialize_DependencyUnavailable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())
	h.gateway.down = true

	err := h.orch.Initialize(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrDependencyUnavailable)
	assert.Equal(t, StateStopped, h.orch.State())
	assert.False(t, h.indexer.Running())
	assert.Equal(t, HealthUnhealthy, h.orch.HealthCheck(ctx).Status)
	assert.NotEmpty(t, h.orch.Status().Errors)
}

func TestInitialize_RecoversProcessingJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())

	// Given: a job stranded in processing by an earlier crash
	enqueue(t, h.queue, 1)
	job, err := h.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)

	// When: the orchestrator starts
	require.NoError(t, h.orch.Initialize(ctx))

	// Then: the job is picked up again and completed
	require.Eventually(t, func() bool {
		s, err := h.queue.Stats(ctx)
		return err == nil && s.Completed == 1 && s.Processing == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFullReindex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())

	// Given: 250 listings and 3 categories in the source
	addListings(h.source, 250)
	for i := 1; i <= 3; i++ {
		h.source.Add("category", source.Record{"id": i, "name": "Cat " + strconv.Itoa(i)})
	}

	// When: a full reindex runs
	res, err := h.orch.FullReindex(ctx)

	// Then: every record is indexed and the status records the sync
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 253, res.Count)
	assert.Empty(t, res.Errors)

	n, err := h.gateway.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(253), n)

	st := h.orch.Status()
	assert.False(t, st.IsSyncing)
	assert.NotNil(t, st.LastSyncAt)
	assert.Equal(t, int64(253), st.TotalSynced)
	assert.Equal(t, 100, st.Progress.Percent)
	assert.Equal(t, StageDone, st.Progress.Stage)
	assert.Equal(t, 253, st.Progress.RecordsDone)
}

func TestFullReindex_CollectsPageErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())

	// Given: the first page is rejected on every attempt and one record has no id
	addListings(h.source, 250)
	h.source.Add("listing", source.Record{"title": "orphan"})
	h.gateway.bulkFailures = 2

	// When: a full reindex runs
	res, err := h.orch.FullReindex(ctx)

	// Then: the other pages land and both problems are reported
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 150, res.Count)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "offset 0")
	assert.Contains(t, res.Errors[1], "missing id")
	assert.Len(t, h.orch.Status().Errors, 2)
}

func TestFullReindex_RecreateFailure(t *testing.T) {
	h := newHarness(t, syncConfig())
	h.gateway.recreateErr = serrors.NotConnected("search engine", nil)

	res, err := h.orch.FullReindex(context.Background())

	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, serrors.ErrNotConnected)
	assert.Equal(t, StageFailed, h.orch.Status().Progress.Stage)
	assert.False(t, h.orch.Status().IsSyncing)
}

func TestSyncGuard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())
	require.NoError(t, h.orch.Initialize(ctx))

	// Given: a sync already in progress
	require.True(t, h.orch.acquire("test", StageScanning))
	assert.Equal(t, StateSyncing, h.orch.State())

	// When/Then: both sync kinds refuse to start
	_, err := h.orch.FullReindex(ctx)
	assert.ErrorIs(t, err, serrors.ErrAlreadySyncing)
	assert.ErrorIs(t, h.orch.StartReindex(), serrors.ErrAlreadySyncing)

	res := h.orch.IncrementalSync(ctx)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)

	h.orch.release()
	assert.Equal(t, StateRunning, h.orch.State())
}

func TestIncrementalSync_EmptyQueue(t *testing.T) {
	h := newHarness(t, syncConfig())

	res := h.orch.IncrementalSync(context.Background())

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, h.orch.Status().LastSyncAt)
}

func TestIncrementalSync_NotDrained(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())

	// Given: pending jobs and no consumer
	enqueue(t, h.queue, 1)

	// When: a sync tick waits for the drain
	res := h.orch.IncrementalSync(ctx)

	// Then: it gives up without error and records why
	assert.False(t, res.Success)
	assert.Nil(t, h.orch.Status().LastSyncAt)
	assert.Len(t, h.orch.Status().Errors, 1)
}

func TestIncrementalSync_CountsDrainedJobs(t *testing.T) {
	ctx := context.Background()
	cfg := syncConfig()
	cfg.MaxRetries = 200
	cfg.RetryDelay = 10 * time.Millisecond
	h := newHarness(t, cfg)

	// Given: three pending jobs observed before the consumer starts
	for i := 1; i <= 3; i++ {
		enqueue(t, h.queue, i)
	}
	done := make(chan SyncResult, 1)
	go func() { done <- h.orch.IncrementalSync(ctx) }()
	require.Eventually(t, func() bool { return h.orch.Status().IsSyncing }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// When: the indexer drains the queue
	h.indexer.Start(ctx)
	t.Cleanup(func() { _ = h.indexer.Stop(ctx) })

	// Then: the sync reports the completed delta
	var res SyncResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("incremental sync did not finish")
	}
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, int64(3), h.orch.Status().TotalSynced)
}

func TestPeriodicSync(t *testing.T) {
	ctx := context.Background()
	cfg := syncConfig()
	cfg.Enabled = true
	cfg.Interval = 30 * time.Millisecond
	h := newHarness(t, cfg)

	require.NoError(t, h.orch.Initialize(ctx))

	require.Eventually(t, func() bool {
		return h.orch.Status().LastSyncAt != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotNil(t, h.orch.Status().NextSyncAt)
}

func TestTriggerManualSync_ResetsTimer(t *testing.T) {
	ctx := context.Background()
	cfg := syncConfig()
	cfg.Enabled = true
	h := newHarness(t, cfg)
	require.NoError(t, h.orch.Initialize(ctx))

	first := h.orch.Status().NextSyncAt
	require.NotNil(t, first)
	time.Sleep(5 * time.Millisecond)

	res := h.orch.TriggerManualSync(ctx)

	assert.True(t, res.Success)
	second := h.orch.Status().NextSyncAt
	require.NotNil(t, second)
	assert.True(t, second.After(*first))
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())
	require.NoError(t, h.orch.Initialize(ctx))
	require.Nil(t, h.orch.Status().NextSyncAt)

	enabled := true
	interval := 10 * time.Minute
	retries := 5
	batch := 25

	// When: sync is enabled with a new interval
	cfg, err := h.orch.UpdateConfig(ConfigPatch{
		Enabled:        &enabled,
		Interval:       &interval,
		MaxRetries:     &retries,
		IndexBatchSize: &batch,
	})

	// Then: the timer is armed and the merge kept untouched fields
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, interval, cfg.Interval)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.NotNil(t, h.orch.Status().NextSyncAt)

	// When: sync is disabled
	enabled = false
	_, err = h.orch.UpdateConfig(ConfigPatch{Enabled: &enabled})

	// Then: the timer is disarmed
	require.NoError(t, err)
	assert.Nil(t, h.orch.Status().NextSyncAt)

	// When: an invalid value is patched in
	zero := 0
	_, err = h.orch.UpdateConfig(ConfigPatch{BatchSize: &zero})

	// Then: it is rejected and the config is unchanged
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)
	assert.Equal(t, 100, h.orch.Config().BatchSize)
}

func TestInitialize_ConcurrentConfigUpdates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())
	interval := 10 * time.Minute

	// Given: config updates toggling sync while the service initializes
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 50 {
			enabled := i%2 == 1
			_, err := h.orch.UpdateConfig(ConfigPatch{Enabled: &enabled, Interval: &interval})
			assert.NoError(t, err)
		}
	}()

	// When: Initialize runs alongside them
	require.NoError(t, h.orch.Initialize(ctx))
	wg.Wait()

	// Then: the last update wins and the timer follows it
	assert.Equal(t, StateRunning, h.orch.State())
	assert.True(t, h.orch.Config().Enabled)
	assert.Equal(t, interval, h.orch.Config().Interval)
	assert.NotNil(t, h.orch.Status().NextSyncAt)
}

func TestStartReindex_PublishesResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())
	require.NoError(t, h.orch.Initialize(ctx))
	addListings(h.source, 5)

	require.NoError(t, h.orch.StartReindex())

	require.Eventually(t, func() bool {
		return h.orch.Status().LastResult != nil
	}, 2*time.Second, 10*time.Millisecond)
	res := h.orch.Status().LastResult
	assert.True(t, res.Success)
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, StateRunning, h.orch.State())
}

func TestStats_Aggregates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())
	enqueue(t, h.queue, 1)

	s := h.orch.Stats(ctx)

	assert.Equal(t, 1, s.Queue.Pending)
	assert.Empty(t, s.QueueError)
	assert.False(t, s.Indexer.Running)
	assert.Equal(t, StateStopped, s.Sync.State)
}

func TestRecentErrorsAreBounded(t *testing.T) {
	h := newHarness(t, syncConfig())

	for i := range 60 {
		h.orch.recordError("error " + strconv.Itoa(i))
	}

	errs := h.orch.Status().Errors
	require.Len(t, errs, maxRecentErrors)
	assert.Equal(t, "error 10", errs[0])
	assert.Equal(t, "error 59", errs[len(errs)-1])
}

type stubFeed struct {
	stats source.FeedStats
	up    bool
}

func (f *stubFeed) Stats() source.FeedStats { return f.stats }
func (f *stubFeed) Connected() bool         { return f.up }

func TestFeed_ReportedInStatsAndHealth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())
	feed := &stubFeed{stats: source.FeedStats{Received: 4, Enqueued: 3, Rejected: 1}}
	h.orch.feed = feed
	require.NoError(t, h.orch.Initialize(ctx))

	// Given: a feed that lost its connection
	// When: stats and health are read
	s := h.orch.Stats(ctx)
	health := h.orch.HealthCheck(ctx)

	// Then: the counters are surfaced and health is degraded
	require.NotNil(t, s.Feed)
	assert.Equal(t, feed.stats, *s.Feed)
	require.NotNil(t, health.FeedConnected)
	assert.False(t, *health.FeedConnected)
	assert.Equal(t, HealthDegraded, health.Status)
	assert.Contains(t, health.Errors, "change feed is not connected")

	// When: the feed reconnects
	feed.up = true

	// Then: health recovers
	health = h.orch.HealthCheck(ctx)
	assert.True(t, *health.FeedConnected)
	assert.Equal(t, HealthHealthy, health.Status)
}

func TestFeed_OmittedWhenNotConfigured(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig())

	assert.Nil(t, h.orch.Stats(ctx).Feed)
	assert.Nil(t, h.orch.HealthCheck(ctx).FeedConnected)
}
