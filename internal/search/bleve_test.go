package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/mapping"
)

func newMemGateway(t *testing.T, opts ...Option) *BleveGateway {
	t.Helper()
	g, err := NewBleveGateway("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func doc(entity, id string, fields map[string]any) mapping.Document {
	f := map[string]any{"entity": entity, "id": id}
	for k, v := range fields {
		f[k] = v
	}
	return mapping.Document{Key: mapping.Key(entity, id), Fields: f}
}

func TestBulkUpsert_IndexesAndDeletes(t *testing.T) {
	ctx := context.Background()
	g := newMemGateway(t)

	// Given: two documents indexed in one call
	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{
		doc("listing", "1", map[string]any{"title": "Desk Lamp"}),
		doc("listing", "2", map[string]any{"title": "Garden Chair"}),
	}))
	n, err := g.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	// When: a batch mixes an upsert with a tombstone
	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{
		doc("listing", "1", map[string]any{"title": "Floor Lamp"}),
		{Key: "listing:2"},
	}))

	// Then: the tombstone removed its document and the upsert replaced
	n, err = g.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	res, err := g.Search(ctx, Request{Query: "floor"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "listing:1", res.Hits[0].ID)
	assert.Equal(t, "Floor Lamp", res.Hits[0].Fields["title"])
}

func TestSearch_EntityFilter(t *testing.T) {
	ctx := context.Background()
	g := newMemGateway(t)
	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{
		doc("listing", "1", map[string]any{"title": "garden hose"}),
		doc("category", "9", map[string]any{"name": "garden"}),
	}))

	all, err := g.Search(ctx, Request{Query: "garden"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), all.Total)

	cats, err := g.Search(ctx, Request{Query: "garden", Entity: "category"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), cats.Total)
	assert.Equal(t, "category:9", cats.Hits[0].ID)

	everything, err := g.Search(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), everything.Total)
}

func TestSearch_CacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	g := newMemGateway(t, WithCacheSize(8))
	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{doc("listing", "1", map[string]any{"title": "lamp"})}))

	first, err := g.Search(ctx, Request{Query: "lamp"})
	require.NoError(t, err)
	second, err := g.Search(ctx, Request{Query: "lamp"})
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{doc("listing", "2", map[string]any{"title": "lamp"})}))

	third, err := g.Search(ctx, Request{Query: "lamp"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), third.Total)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	g := newMemGateway(t, WithCacheSize(8))
	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{
		doc("listing", "1", map[string]any{"title": "brass lamp"}),
		doc("listing", "2", map[string]any{"title": "paper lamp"}),
	}))
	cached, err := g.Search(ctx, Request{Query: "lamp"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), cached.Total)

	// When: one document is deleted by key
	require.NoError(t, g.DeleteDocument(ctx, "listing:1"))

	// Then: it is gone from the index and from cached results
	n, err := g.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	res, err := g.Search(ctx, Request{Query: "lamp"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "listing:2", res.Hits[0].ID)

	// And: deleting an unknown key is harmless
	assert.NoError(t, g.DeleteDocument(ctx, "listing:404"))

	// When: the gateway is closed
	require.NoError(t, g.Close())

	// Then: deletes report the engine as unreachable
	assert.ErrorIs(t, g.DeleteDocument(ctx, "listing:2"), serrors.ErrNotConnected)
}

func TestIndexLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bleve")
	g, err := NewBleveGateway(path)
	require.NoError(t, err)
	defer func() { _ = g.Close() }()

	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{doc("profile", "u1", nil)}))

	// CreateIndex is idempotent and keeps data
	require.NoError(t, g.CreateIndex(ctx))
	n, err := g.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	// DeleteIndex makes the engine red until recreated
	require.NoError(t, g.DeleteIndex(ctx))
	assert.Equal(t, StatusRed, g.Health(ctx).Status)
	assert.ErrorIs(t, g.BulkUpsert(ctx, []mapping.Document{doc("profile", "u2", nil)}), serrors.ErrNotConnected)
	assert.NoDirExists(t, path)

	require.NoError(t, g.CreateIndex(ctx))
	h := g.Health(ctx)
	assert.Equal(t, StatusGreen, h.Status)
	assert.Equal(t, uint64(0), h.DocCount)

	// RecreateIndex empties an existing index
	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{doc("profile", "u3", nil)}))
	require.NoError(t, g.RecreateIndex(ctx))
	n, err = g.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestNewBleveGateway_ReopensExistingIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bleve")

	g, err := NewBleveGateway(path)
	require.NoError(t, err)
	require.NoError(t, g.BulkUpsert(ctx, []mapping.Document{doc("listing", "1", nil)}))
	require.NoError(t, g.Close())

	reopened, err := NewBleveGateway(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	n, err := reopened.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestHealth_YellowWhileBreakerOpen(t *testing.T) {
	ctx := context.Background()
	g := newMemGateway(t, WithBreaker(1, time.Hour))

	g.breaker.RecordFailure()

	assert.Equal(t, StatusYellow, g.Health(ctx).Status)
	assert.True(t, g.Health(ctx).Up())
	err := g.BulkUpsert(ctx, []mapping.Document{doc("listing", "1", nil)})
	assert.ErrorIs(t, err, serrors.ErrNotConnected)
}

func TestClosedGateway(t *testing.T) {
	ctx := context.Background()
	g, err := NewBleveGateway("")
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	assert.False(t, g.Health(ctx).Up())
	_, err = g.Search(ctx, Request{Query: "x"})
	assert.ErrorIs(t, err, serrors.ErrNotConnected)
	assert.ErrorIs(t, g.CreateIndex(ctx), serrors.ErrNotConnected)
}
