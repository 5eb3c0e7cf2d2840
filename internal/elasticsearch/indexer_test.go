package elasticsearch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeCluster answers like an Elasticsearch node and records every request.
type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(r *http.Request) (int, string)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	f.mu.Unlock()

	status, resp := http.StatusOK, `{"result":"created"}`
	if f.respond != nil {
		status, resp = f.respond(r)
	}
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}

func (f *fakeCluster) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestIndexer(t *testing.T, cluster *fakeCluster) search.Indexer {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	idx, err := New(Config{Addresses: []string{srv.URL}}, zerolog.Nop())
	require.NoError(t, err)
	return idx
}

func TestIndexer_IndexAndRefresh(t *testing.T) {
	// Given: a healthy cluster
	cluster := &fakeCluster{}
	idx := newTestIndexer(t, cluster)
	ctx := context.Background()

	// When: writing a record and refreshing its index
	rec := types.NewIndexRecord("all_products", "abc123", map[string]any{"title": "Widget", "price": 9.99})
	require.NoError(t, idx.Index(ctx, rec))
	require.NoError(t, idx.Refresh(ctx, "all_products"))

	// Then: the record is PUT under its id, followed by a refresh
	reqs := cluster.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/all_products/_doc/abc123", reqs[0].Path)
	assert.JSONEq(t, `{"title":"Widget","price":9.99}`, reqs[0].Body)
	assert.Equal(t, http.MethodPost, reqs[1].Method)
	assert.Equal(t, "/all_products/_refresh", reqs[1].Path)
}

func TestIndexer_IndexEmptyPayload(t *testing.T) {
	cluster := &fakeCluster{}
	idx := newTestIndexer(t, cluster)

	require.NoError(t, idx.Index(context.Background(), types.NewIndexRecord("all_products", "empty", nil)))

	reqs := cluster.recorded()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{}`, reqs[0].Body)
}

func TestIndexer_IndexRejected(t *testing.T) {
	cluster := &fakeCluster{respond: func(*http.Request) (int, string) {
		return http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception"}}`
	}}
	idx := newTestIndexer(t, cluster)

	err := idx.Index(context.Background(), types.NewIndexRecord("all_products", "bad", map[string]any{"productPrice": "n/a"}))

	var re *search.ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "index", re.Op)
	assert.Contains(t, re.Body, "mapper_parsing_exception")
	assert.True(t, search.IsRejected(err))
}

func TestIndexer_RefreshUnavailable(t *testing.T) {
	cluster := &fakeCluster{respond: func(*http.Request) (int, string) {
		return http.StatusServiceUnavailable, `{"error":"unavailable"}`
	}}
	idx := newTestIndexer(t, cluster)

	err := idx.Refresh(context.Background(), "all_products")

	var re *search.ResponseError
	require.True(t, errors.As(err, &re))
	assert.True(t, re.Temporary())
}

func TestIndexer_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	idx, err := New(Config{Addresses: []string{srv.URL}}, zerolog.Nop())
	require.NoError(t, err)

	err = idx.Index(context.Background(), types.NewIndexRecord("all_products", "abc123", nil))
	require.Error(t, err)
	assert.False(t, search.IsRejected(err))
}

func TestIndexer_DeleteMissingIsNotAnError(t *testing.T) {
	cluster := &fakeCluster{respond: func(*http.Request) (int, string) {
		return http.StatusNotFound, `{"result":"not_found"}`
	}}
	idx := newTestIndexer(t, cluster)

	require.NoError(t, idx.Delete(context.Background(), "all_products", "gone"))

	reqs := cluster.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/all_products/_doc/gone", reqs[0].Path)
}

func TestIndexer_EnsureIndex(t *testing.T) {
	t.Run("existing index is left alone", func(t *testing.T) {
		cluster := &fakeCluster{}
		idx := newTestIndexer(t, cluster)

		require.NoError(t, idx.EnsureIndex(context.Background(), "all_products", []byte(`{"mappings":{}}`)))

		reqs := cluster.recorded()
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodHead, reqs[0].Method)
	})

	t.Run("missing index is created with the mapping", func(t *testing.T) {
		cluster := &fakeCluster{respond: func(r *http.Request) (int, string) {
			if r.Method == http.MethodHead {
				return http.StatusNotFound, ""
			}
			return http.StatusOK, `{"acknowledged":true}`
		}}
		idx := newTestIndexer(t, cluster)

		require.NoError(t, idx.EnsureIndex(context.Background(), "all_products", []byte(`{"mappings":{"properties":{}}}`)))

		reqs := cluster.recorded()
		require.Len(t, reqs, 2)
		assert.Equal(t, http.MethodPut, reqs[1].Method)
		assert.Equal(t, "/all_products", reqs[1].Path)
		assert.JSONEq(t, `{"mappings":{"properties":{}}}`, reqs[1].Body)
	})

	t.Run("creation race is tolerated", func(t *testing.T) {
		cluster := &fakeCluster{respond: func(r *http.Request) (int, string) {
			if r.Method == http.MethodHead {
				return http.StatusNotFound, ""
			}
			return http.StatusBadRequest, `{"error":{"type":"resource_already_exists_exception"}}`
		}}
		idx := newTestIndexer(t, cluster)

		assert.NoError(t, idx.EnsureIndex(context.Background(), "all_products", nil))
	})
}

func TestIndexer_EscapesDocumentIDs(t *testing.T) {
	ids := []string{"sale?2024", "item#1", "50%off", "shop/1"}

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			cluster := &fakeCluster{}
			idx := newTestIndexer(t, cluster)
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, types.NewIndexRecord("all_products", id, map[string]any{"title": "Widget"})))
			require.NoError(t, idx.Update(ctx, types.NewIndexRecord("all_products", id, map[string]any{"title": "Widget v2"})))
			require.NoError(t, idx.Delete(ctx, "all_products", id))

			reqs := cluster.recorded()
			require.Len(t, reqs, 3)
			assert.Equal(t, "/all_products/_doc/"+id, reqs[0].Path)
			assert.Empty(t, reqs[0].Query)
			assert.Equal(t, "/all_products/_update/"+id, reqs[1].Path)
			assert.Equal(t, "/all_products/_doc/"+id, reqs[2].Path)
		})
	}
}

func TestIndexer_Update(t *testing.T) {
	cluster := &fakeCluster{}
	idx := newTestIndexer(t, cluster)

	require.NoError(t, idx.Update(context.Background(), types.NewIndexRecord("all_products", "abc123", map[string]any{"id": "x", "productPrice": 12.5})))

	reqs := cluster.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/all_products/_update/abc123", reqs[0].Path)
	assert.JSONEq(t, `{"doc":{"productPrice":12.5}}`, reqs[0].Body)
}

func TestIndexer_UpdateMissingDocument(t *testing.T) {
	cluster := &fakeCluster{respond: func(*http.Request) (int, string) {
		return http.StatusNotFound, `{"error":{"type":"document_missing_exception"}}`
	}}
	idx := newTestIndexer(t, cluster)

	err := idx.Update(context.Background(), types.NewIndexRecord("all_products", "gone", map[string]any{"title": "x"}))

	assert.True(t, search.IsNotFound(err))
}
