// Package source reads the system of record: paginated scans for full
// reindexes and a live change feed that enqueues jobs.
package source

import (
	"context"
	"sort"
	"sync"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

// Record is one row of an entity table, keyed by column name.
type Record = map[string]any

// Scanner pages through entity tables.
type Scanner interface {
	// Entities lists the entity names that can be scanned.
	Entities() []string
	// ScanPage returns up to limit records of entity starting at offset, in
	// a stable order. An empty page means the scan is complete.
	ScanPage(ctx context.Context, entity string, offset, limit int) ([]Record, error)
}

// Counter is implemented by scanners that can report table sizes up front.
type Counter interface {
	Count(ctx context.Context, entity string) (int, error)
}

// MemorySource is an in-process Scanner, used when no database is
// configured and in tests.
type MemorySource struct {
	mu      sync.RWMutex
	records map[string][]Record
}

var (
	_ Scanner = (*MemorySource)(nil)
	_ Counter = (*MemorySource)(nil)
)

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{records: make(map[string][]Record)}
}

// Add appends records to entity, registering the entity if needed.
func (m *MemorySource) Add(entity string, records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[entity] = append(m.records[entity], records...)
}

// Entities implements Scanner.
func (m *MemorySource) Entities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.records))
	for e := range m.records {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// ScanPage implements Scanner.
func (m *MemorySource) ScanPage(ctx context.Context, entity string, offset, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.records[entity]
	if !ok {
		return nil, serrors.UnknownEntity(entity)
	}
	if offset < 0 || offset >= len(rows) || limit <= 0 {
		return []Record{}, nil
	}
	end := min(offset+limit, len(rows))
	out := make([]Record, end-offset)
	copy(out, rows[offset:end])
	return out, nil
}

// Count implements Counter.
func (m *MemorySource) Count(_ context.Context, entity string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.records[entity]
	if !ok {
		return 0, serrors.UnknownEntity(entity)
	}
	return len(rows), nil
}
