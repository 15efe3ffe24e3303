// Package search is the facade over the search engine: bulk writes, index
// lifecycle, health and query passthrough.
package search

import (
	"context"

	"github.com/Aman-CERP/indexsync/internal/mapping"
)

// Health statuses, in the engine's cluster-health vocabulary.
const (
	StatusGreen  = "green"
	StatusYellow = "yellow"
	StatusRed    = "red"
)

// Health is a point-in-time view of the engine.
type Health struct {
	Status   string `json:"status"`
	DocCount uint64 `json:"docCount"`
	Breaker  string `json:"breaker"`
}

// Up reports whether the engine can take writes.
func (h Health) Up() bool {
	return h.Status != StatusRed
}

// Request is a query passthrough. An empty Query matches everything.
type Request struct {
	Query  string `json:"query"`
	Entity string `json:"entity,omitempty"`
	Size   int    `json:"size,omitempty"`
	From   int    `json:"from,omitempty"`
}

// Hit is one matching document.
type Hit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Result is a page of hits.
type Result struct {
	Total uint64 `json:"total"`
	Hits  []Hit  `json:"hits"`
}

// Gateway is the search engine contract used by the pipeline.
type Gateway interface {
	// BulkUpsert indexes documents and deletes tombstones in one call.
	// It is all-or-nothing from the caller's point of view.
	BulkUpsert(ctx context.Context, docs []mapping.Document) error
	DeleteDocument(ctx context.Context, key string) error

	// CreateIndex is idempotent.
	CreateIndex(ctx context.Context) error
	DeleteIndex(ctx context.Context) error
	RecreateIndex(ctx context.Context) error

	Health(ctx context.Context) Health
	Search(ctx context.Context, req Request) (*Result, error)
	DocCount(ctx context.Context) (uint64, error)
	Close() error
}
