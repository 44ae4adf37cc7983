package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semindex/document"
	"github.com/c360/semindex/index"
)

// fakeShard records requests and serves canned index responses.
type fakeShard struct {
	mu       sync.Mutex
	added    []document.Document
	deleted  []any
	flushes  []string
	count    int
	results  []index.Result
	failures int
	server   *httptest.Server
}

func newFakeShard(count int, results []index.Result) *fakeShard {
	f := &fakeShard{count: count, results: results}

	mux := http.NewServeMux()
	mux.HandleFunc("/count", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"count": f.count})
	})
	mux.HandleFunc("/add", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Documents []document.Document `json:"documents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.added = append(f.added, body.Documents...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []any `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.deleted = append(f.deleted, body.IDs...)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ids": body.IDs})
	})
	for _, path := range []string{"/index", "/upsert"} {
		p := path
		mux.HandleFunc(p, func(w http.ResponseWriter, _ *http.Request) {
			f.mu.Lock()
			f.flushes = append(f.flushes, p)
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		})
	}
	mux.HandleFunc("/search", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		remaining := f.failures
		if f.failures > 0 {
			f.failures--
		}
		f.mu.Unlock()
		if remaining > 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": f.results})
	})
	mux.HandleFunc("/similarity", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": f.results})
	})
	mux.HandleFunc("/transform", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"vector": []float64{0.1, 0.2}})
	})

	f.server = httptest.NewServer(mux)
	return f
}

func newTestRouter(t *testing.T, shards ...*fakeShard) *Router {
	t.Helper()
	urls := make([]string, len(shards))
	for i, s := range shards {
		urls[i] = s.server.URL
		t.Cleanup(s.server.Close)
	}
	router, err := New(Config{Shards: urls, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return router
}

func TestNewRequiresShards(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCountSumsShards(t *testing.T) {
	router := newTestRouter(t, newFakeShard(3, nil), newFakeShard(4, nil))
	assert.Equal(t, 7, router.Count())
}

func TestAddRoutesAllDocuments(t *testing.T) {
	a := newFakeShard(0, nil)
	b := newFakeShard(0, nil)
	router := newTestRouter(t, a, b)

	docs := []document.Document{
		{ID: 1, Text: "first"},
		{ID: 2, Text: "second"},
		{ID: 3, Text: "third"},
		{Text: "no id assigned yet"},
	}
	require.NoError(t, router.Add(context.Background(), docs))

	a.mu.Lock()
	b.mu.Lock()
	total := len(a.added) + len(b.added)
	for _, doc := range append(a.added, b.added...) {
		assert.NotNil(t, doc.ID)
	}
	b.mu.Unlock()
	a.mu.Unlock()
	assert.Equal(t, 4, total)
}

func TestAddRoutingIsStable(t *testing.T) {
	a := newFakeShard(0, nil)
	b := newFakeShard(0, nil)
	router := newTestRouter(t, a, b)

	ctx := context.Background()
	require.NoError(t, router.Add(ctx, []document.Document{{ID: 42, Text: "doc"}}))
	_, err := router.Delete(ctx, []any{42})
	require.NoError(t, err)

	// The delete must land on the same shard the add went to
	a.mu.Lock()
	b.mu.Lock()
	if len(a.added) == 1 {
		assert.Len(t, a.deleted, 1)
		assert.Empty(t, b.deleted)
	} else {
		assert.Len(t, b.deleted, 1)
		assert.Empty(t, a.deleted)
	}
	b.mu.Unlock()
	a.mu.Unlock()
}

func TestIndexAndUpsertBroadcast(t *testing.T) {
	a := newFakeShard(0, nil)
	b := newFakeShard(0, nil)
	router := newTestRouter(t, a, b)

	ctx := context.Background()
	require.NoError(t, router.Index(ctx, nil))
	require.NoError(t, router.Upsert(ctx, nil))

	for _, s := range []*fakeShard{a, b} {
		s.mu.Lock()
		assert.Equal(t, []string{"/index", "/upsert"}, s.flushes)
		s.mu.Unlock()
	}
}

func TestSearchMergesByScore(t *testing.T) {
	a := newFakeShard(0, []index.Result{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.3}})
	b := newFakeShard(0, []index.Result{{ID: 3, Score: 0.7}})
	router := newTestRouter(t, a, b)

	results, err := router.Search(context.Background(), "query", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	a := newFakeShard(0, []index.Result{{ID: 1, Score: 0.5}})
	a.failures = 1
	router := newTestRouter(t, a)

	results, err := router.Search(context.Background(), "query", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSimilarityUsesFirstShard(t *testing.T) {
	a := newFakeShard(0, []index.Result{{ID: 0, Score: 0.8}})
	b := newFakeShard(0, nil)
	router := newTestRouter(t, a, b)

	results, err := router.Similarity(context.Background(), "query", []string{"text"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), results[0].ID)
}

func TestTransform(t *testing.T) {
	router := newTestRouter(t, newFakeShard(0, nil))

	vector, err := router.Transform(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, vector)
}

func TestScoringIsShardLocal(t *testing.T) {
	router := newTestRouter(t, newFakeShard(0, nil))
	assert.False(t, router.NeedsScoring())
	assert.NoError(t, router.Score(context.Background(), nil))
	assert.NoError(t, router.Save("/any/path"))
	assert.NoError(t, router.Load("/any/path"))
}
