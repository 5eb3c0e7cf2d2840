package localindex

import (
	"context"
	"testing"

	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexer_LastWriteWins(t *testing.T) {
	// Given: an in-memory index
	x := New("", zerolog.Nop())
	defer x.Close()
	ctx := context.Background()

	// When: the same id is written twice
	require.NoError(t, x.Index(ctx, types.NewIndexRecord("all_products", "abc123", map[string]any{"title": "Widget", "price": 9.99})))
	require.NoError(t, x.Index(ctx, types.NewIndexRecord("all_products", "abc123", map[string]any{"title": "Widget v2", "price": 10.5})))
	require.NoError(t, x.Refresh(ctx, "all_products"))

	// Then: one record holds the latest payload
	count, err := x.Count("all_products")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	doc, ok, err := x.Get(ctx, "all_products", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Widget v2", doc["title"])
	assert.Equal(t, 10.5, doc["price"])
}

func TestIndexer_Delete(t *testing.T) {
	x := New("", zerolog.Nop())
	defer x.Close()
	ctx := context.Background()

	require.NoError(t, x.Index(ctx, types.NewIndexRecord("all_products", "gone", map[string]any{"title": "Old"})))
	require.NoError(t, x.Delete(ctx, "all_products", "gone"))
	require.NoError(t, x.Delete(ctx, "all_products", "never-existed"))

	_, ok, err := x.Get(ctx, "all_products", "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexer_IndexesAreSeparate(t *testing.T) {
	x := New("", zerolog.Nop())
	defer x.Close()
	ctx := context.Background()

	require.NoError(t, x.EnsureIndex(ctx, "all_products", []byte(`{"mappings":{}}`)))
	require.NoError(t, x.Index(ctx, types.NewIndexRecord("shop_products", "p1", map[string]any{"title": "Lamp"})))

	count, err := x.Count("all_products")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexer_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	x := New(dir, zerolog.Nop())
	require.NoError(t, x.Index(ctx, types.NewIndexRecord("all_products", "abc123", map[string]any{"title": "Widget"})))
	require.NoError(t, x.Close())

	// reopening sees the persisted record
	x = New(dir, zerolog.Nop())
	defer x.Close()
	count, err := x.Count("all_products")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestIndexer_Closed(t *testing.T) {
	x := New("", zerolog.Nop())
	require.NoError(t, x.Close())

	err := x.Index(context.Background(), types.NewIndexRecord("all_products", "abc123", nil))
	assert.ErrorContains(t, err, "closed")
}

func TestIndexer_Update(t *testing.T) {
	// Given: a stored product
	x := New("", zerolog.Nop())
	defer x.Close()
	ctx := context.Background()
	require.NoError(t, x.Index(ctx, types.NewIndexRecord("all_products", "abc123", map[string]any{"title": "Widget", "price": 9.99})))

	// When: only the price changes
	require.NoError(t, x.Update(ctx, types.NewIndexRecord("all_products", "abc123", map[string]any{"price": 12.5})))

	// Then: untouched fields are kept
	doc, ok, err := x.Get(ctx, "all_products", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Widget", doc["title"])
	assert.Equal(t, 12.5, doc["price"])
}

func TestIndexer_UpdateMissing(t *testing.T) {
	x := New("", zerolog.Nop())
	defer x.Close()
	ctx := context.Background()

	err := x.Update(ctx, types.NewIndexRecord("all_products", "nope", map[string]any{"price": 1}))
	assert.True(t, search.IsNotFound(err))

	require.NoError(t, x.Index(ctx, types.NewIndexRecord("all_products", "gone", map[string]any{"title": "Old"})))
	require.NoError(t, x.Delete(ctx, "all_products", "gone"))
	err = x.Update(ctx, types.NewIndexRecord("all_products", "gone", map[string]any{"title": "New"}))
	assert.True(t, search.IsNotFound(err))
}
