package orchestrator

import (
	"time"

	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/indexer"
	"github.com/Aman-CERP/indexsync/internal/queue"
	"github.com/Aman-CERP/indexsync/internal/search"
	"github.com/Aman-CERP/indexsync/internal/source"
)

// SyncResult is the outcome of a reindex or incremental sync.
type SyncResult struct {
	Success  bool          `json:"success"`
	Count    int           `json:"count"`
	Errors   []string      `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Status is the orchestrator-owned sync state.
type Status struct {
	State       State            `json:"state"`
	IsSyncing   bool             `json:"is_syncing"`
	LastSyncAt  *time.Time       `json:"last_sync_at,omitempty"`
	NextSyncAt  *time.Time       `json:"next_sync_at,omitempty"`
	TotalSynced int64            `json:"total_synced"`
	Errors      []string         `json:"errors"`
	Progress    ProgressSnapshot `json:"progress"`
	// LastResult is the outcome of the most recent background reindex.
	LastResult *SyncResult `json:"last_result,omitempty"`
}

// Stats aggregates every counter the pipeline keeps.
type Stats struct {
	Indexer    indexer.Stats `json:"indexer"`
	Queue      queue.Stats   `json:"queue"`
	QueueError string        `json:"queue_error,omitempty"`
	Sync       Status        `json:"sync"`
	// Feed is set when a change feed is configured.
	Feed *source.FeedStats `json:"feed,omitempty"`
}

// HealthStatus summarizes a health check.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the aggregated health of the pipeline.
type Health struct {
	Status                 HealthStatus  `json:"status"`
	SearchEngineUp         bool          `json:"search_engine_up"`
	QueueUp                bool          `json:"queue_up"`
	IndexerRunning         bool          `json:"indexer_running"`
	SyncServiceInitialized bool          `json:"sync_service_initialized"`
	State                  State         `json:"state"`
	Search                 search.Health `json:"search"`
	FeedConnected          *bool         `json:"feed_connected,omitempty"`
	Errors                 []string      `json:"errors,omitempty"`
}

// ConfigPatch is a partial SyncConfig update. Nil fields are left alone.
type ConfigPatch struct {
	Enabled    *bool          `json:"enabled,omitempty"`
	BatchSize  *int           `json:"batch_size,omitempty"`
	Interval   *time.Duration `json:"interval,omitempty"`
	MaxRetries *int           `json:"max_retries,omitempty"`
	RetryDelay *time.Duration `json:"retry_delay,omitempty"`
	// IndexBatchSize changes the indexer's flush size.
	IndexBatchSize *int `json:"index_batch_size,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ConfigPatch) IsEmpty() bool {
	return p.Enabled == nil && p.BatchSize == nil && p.Interval == nil &&
		p.MaxRetries == nil && p.RetryDelay == nil && p.IndexBatchSize == nil
}

func (p ConfigPatch) apply(c config.SyncConfig) config.SyncConfig {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.BatchSize != nil {
		c.BatchSize = *p.BatchSize
	}
	if p.Interval != nil {
		c.Interval = *p.Interval
	}
	if p.MaxRetries != nil {
		c.MaxRetries = *p.MaxRetries
	}
	if p.RetryDelay != nil {
		c.RetryDelay = *p.RetryDelay
	}
	return c
}
