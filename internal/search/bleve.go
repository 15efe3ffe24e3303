package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	blevemapping "github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/mapping"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 1000
	component         = "search engine"
)

// BleveGateway implements Gateway on an embedded bleve index.
// An empty path keeps the index in memory.
type BleveGateway struct {
	path    string
	logger  *slog.Logger
	breaker *serrors.CircuitBreaker

	breakerFailures int
	breakerReset    time.Duration

	cacheSize int
	cache     *lru.Cache[string, *Result]

	mu     sync.RWMutex
	index  bleve.Index // nil after DeleteIndex
	closed bool
}

var _ Gateway = (*BleveGateway)(nil)

// Option configures a BleveGateway.
type Option func(*BleveGateway)

// WithCacheSize sets the query result cache size. 0 disables caching.
func WithCacheSize(n int) Option {
	return func(g *BleveGateway) { g.cacheSize = n }
}

// WithBreaker configures the circuit breaker around bulk writes.
func WithBreaker(maxFailures int, reset time.Duration) Option {
	return func(g *BleveGateway) {
		g.breakerFailures = maxFailures
		g.breakerReset = reset
	}
}

// newBreaker counts engine errors only. A document the engine refuses is
// permanent for its job and does not open the circuit.
func (g *BleveGateway) newBreaker() *serrors.CircuitBreaker {
	return serrors.NewCircuitBreaker("search",
		serrors.WithMaxFailures(g.breakerFailures),
		serrors.WithResetTimeout(g.breakerReset),
		serrors.WithFailureFilter(func(err error) bool { return !serrors.IsPermanent(err) }),
		serrors.WithStateChange(func(name string, from, to serrors.State) {
			g.logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}))
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *BleveGateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewBleveGateway opens the index at path, creating it if missing. A
// corrupted on-disk index is cleared and recreated empty.
func NewBleveGateway(path string, opts ...Option) (*BleveGateway, error) {
	g := &BleveGateway{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.breaker = g.newBreaker()

	if g.cacheSize > 0 {
		cache, err := lru.New[string, *Result](g.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		g.cache = cache
	}

	idx, err := g.open()
	if err != nil {
		return nil, err
	}
	g.index = idx
	return g, nil
}

// newIndexMapping keeps the entity field unanalyzed so filters are exact.
func newIndexMapping() *blevemapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	im.DefaultMapping.AddFieldMappingsAt("entity", bleve.NewKeywordFieldMapping())
	return im
}

// open opens or creates the index. Caller must hold mu or own g exclusively.
func (g *BleveGateway) open() (bleve.Index, error) {
	if g.path == "" {
		idx, err := bleve.NewMemOnly(newIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
		return idx, nil
	}

	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := validateIndexMeta(g.path); err != nil {
		g.logger.Warn("search index corrupted, clearing",
			slog.String("path", g.path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(g.path); rmErr != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w", g.path, rmErr)
		}
	}

	idx, err := bleve.Open(g.path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(g.path, newIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}
	return idx, nil
}

// validateIndexMeta checks index_meta.json of an existing index directory.
func validateIndexMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// current returns the open index or a NotConnected error. Caller holds mu.
func (g *BleveGateway) current() (bleve.Index, error) {
	if g.closed {
		return nil, serrors.NotConnected(component, nil)
	}
	if g.index == nil {
		return nil, serrors.NotConnected(component, errors.New("index does not exist"))
	}
	return g.index, nil
}

func (g *BleveGateway) purgeCache() {
	if g.cache != nil {
		g.cache.Purge()
	}
}

// BulkUpsert implements Gateway. Calls fail fast with NotConnected while
// the breaker is open.
func (g *BleveGateway) BulkUpsert(ctx context.Context, docs []mapping.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, err := g.current()
	if err != nil {
		return err
	}

	err = g.breaker.Execute(func() error {
		batch := idx.NewBatch()
		for _, doc := range docs {
			if doc.IsDelete() {
				batch.Delete(doc.Key)
				continue
			}
			if err := batch.Index(doc.Key, doc.Fields); err != nil {
				return serrors.New(serrors.ErrCodeInvalidPayload,
					fmt.Sprintf("failed to index document %s", doc.Key), err)
			}
		}
		return idx.Batch(batch)
	})
	if errors.Is(err, serrors.ErrCircuitOpen) {
		return serrors.NotConnected(component, err)
	}
	if err != nil {
		return err
	}

	g.purgeCache()
	g.logger.Debug("bulk upsert", slog.Int("batch_size", len(docs)))
	return nil
}

// DeleteDocument implements Gateway.
func (g *BleveGateway) DeleteDocument(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, err := g.current()
	if err != nil {
		return err
	}
	if err := idx.Delete(key); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", key, err)
	}
	g.purgeCache()
	return nil
}

// CreateIndex implements Gateway.
func (g *BleveGateway) CreateIndex(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return serrors.NotConnected(component, nil)
	}
	if g.index != nil {
		return nil
	}

	idx, err := g.open()
	if err != nil {
		return err
	}
	g.index = idx
	g.logger.Info("search index created", slog.String("path", g.path))
	return nil
}

// DeleteIndex implements Gateway. Deleting a missing index is not an error.
func (g *BleveGateway) DeleteIndex(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return serrors.NotConnected(component, nil)
	}
	return g.deleteLocked()
}

func (g *BleveGateway) deleteLocked() error {
	if g.index != nil {
		if err := g.index.Close(); err != nil {
			return fmt.Errorf("failed to close index: %w", err)
		}
		g.index = nil
	}
	if g.path != "" {
		if err := os.RemoveAll(g.path); err != nil {
			return fmt.Errorf("failed to remove index: %w", err)
		}
	}
	g.purgeCache()
	g.logger.Info("search index deleted", slog.String("path", g.path))
	return nil
}

// RecreateIndex implements Gateway.
func (g *BleveGateway) RecreateIndex(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return serrors.NotConnected(component, nil)
	}
	if err := g.deleteLocked(); err != nil {
		return err
	}
	idx, err := g.open()
	if err != nil {
		return err
	}
	g.index = idx
	return nil
}

// Health implements Gateway: red when the index is missing or closed,
// yellow while the write breaker is not closed.
func (g *BleveGateway) Health(_ context.Context) Health {
	g.mu.RLock()
	defer g.mu.RUnlock()

	breaker := g.breaker.State()
	h := Health{Status: StatusGreen, Breaker: breaker.String()}

	idx, err := g.current()
	if err != nil {
		h.Status = StatusRed
		return h
	}
	if n, err := idx.DocCount(); err == nil {
		h.DocCount = n
	}
	if breaker != serrors.StateClosed {
		h.Status = StatusYellow
	}
	return h
}

// DocCount implements Gateway.
func (g *BleveGateway) DocCount(_ context.Context) (uint64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, err := g.current()
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Search implements Gateway. Results are cached until the next write.
func (g *BleveGateway) Search(ctx context.Context, req Request) (*Result, error) {
	if req.Size <= 0 {
		req.Size = defaultSearchSize
	}
	if req.Size > maxSearchSize {
		req.Size = maxSearchSize
	}
	if req.From < 0 {
		req.From = 0
	}

	key := fmt.Sprintf("%s\x00%s\x00%d\x00%d", req.Query, req.Entity, req.Size, req.From)

	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, err := g.current()
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		if res, ok := g.cache.Get(key); ok {
			return res, nil
		}
	}

	var q query.Query = bleve.NewMatchAllQuery()
	if req.Query != "" {
		q = bleve.NewQueryStringQuery(req.Query)
	}
	if req.Entity != "" {
		entity := bleve.NewTermQuery(req.Entity)
		entity.SetField("entity")
		q = bleve.NewConjunctionQuery(q, entity)
	}

	sr := bleve.NewSearchRequestOptions(q, req.Size, req.From, false)
	sr.Fields = []string{"*"}

	res, err := idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeSearchFailed, "search failed", err)
	}

	out := &Result{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: hit.ID, Score: hit.Score, Fields: hit.Fields})
	}

	if g.cache != nil {
		g.cache.Add(key, out)
	}
	return out, nil
}

// Close implements Gateway.
func (g *BleveGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	if g.index != nil {
		err := g.index.Close()
		g.index = nil
		return err
	}
	return nil
}
