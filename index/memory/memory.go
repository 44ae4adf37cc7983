// Package memory implements the local in-process semantic index.
//
// Documents are embedded through a configurable embedder and ranked with
// cosine similarity over a brute-force scan. The index persists to a SQLite
// database file, so a saved index can be reloaded across process restarts.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/c360/semindex/document"
	"github.com/c360/semindex/embedding"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

type entry struct {
	id     any
	text   string
	vector []float32
}

// Index is an embedder-backed semantic index. All public methods are safe for
// concurrent use; reads never observe a partially rebuilt state.
type Index struct {
	embedder embedding.Embedder
	scoring  bool

	mu      sync.RWMutex
	entries []entry
	byID    map[any]int
}

// Config configures the local index.
type Config struct {
	// Embedder produces document and query vectors; defaults to BM25
	Embedder embedding.Embedder

	// Scoring enables the lexical scoring pre-pass before full index
	// builds. Only effective when the embedder supports fitting.
	Scoring bool
}

// New creates an empty local index.
func New(cfg Config) *Index {
	if cfg.Embedder == nil {
		cfg.Embedder = embedding.NewBM25Embedder(embedding.BM25Config{})
	}
	return &Index{
		embedder: cfg.Embedder,
		scoring:  cfg.Scoring,
		byID:     make(map[any]int),
	}
}

// Count returns the total number of indexed documents.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// NeedsScoring reports whether a scoring pre-pass should run before a full
// index build.
func (ix *Index) NeedsScoring() bool {
	if !ix.scoring {
		return false
	}
	_, ok := ix.embedder.(embedding.Fitter)
	return ok
}

// Score runs the scoring pre-pass over the documents about to be indexed.
func (ix *Index) Score(_ context.Context, documents []document.Document) error {
	fitter, ok := ix.embedder.(embedding.Fitter)
	if !ok {
		return nil
	}
	corpus := make([]string, len(documents))
	for i, doc := range documents {
		corpus[i] = doc.Text
	}
	fitter.Fit(corpus)
	return nil
}

// Index rebuilds the index from the given documents only, discarding any
// previous contents.
func (ix *Index) Index(ctx context.Context, documents []document.Document) error {
	entries, err := ix.embed(ctx, documents)
	if err != nil {
		return errors.Wrap(err, "Memory", "Index", "embed documents")
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.entries = nil
	ix.byID = make(map[any]int)
	ix.merge(entries)
	return nil
}

// Upsert incrementally merges documents into the index, replacing entries
// with matching ids and appending new ones.
func (ix *Index) Upsert(ctx context.Context, documents []document.Document) error {
	entries, err := ix.embed(ctx, documents)
	if err != nil {
		return errors.Wrap(err, "Memory", "Upsert", "embed documents")
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.merge(entries)
	return nil
}

// Add is an incremental merge, identical to Upsert for the local index. It
// exists so the local index and the cluster router expose the same
// operation set.
func (ix *Index) Add(ctx context.Context, documents []document.Document) error {
	return ix.Upsert(ctx, documents)
}

// Delete removes documents by id and returns the ids actually deleted, or
// nil when none were present.
func (ix *Index) Delete(_ context.Context, ids []any) ([]any, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var deleted []any
	for _, id := range ids {
		key := index.NormalizeID(id)
		pos, ok := ix.byID[key]
		if !ok {
			continue
		}
		deleted = append(deleted, key)

		last := len(ix.entries) - 1
		if pos != last {
			ix.entries[pos] = ix.entries[last]
			ix.byID[ix.entries[pos].id] = pos
		}
		ix.entries = ix.entries[:last]
		delete(ix.byID, key)
	}

	return deleted, nil
}

// Search finds the indexed documents most similar to query, best first.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]index.Result, error) {
	vectors, err := ix.embedder.Generate(ctx, []string{query})
	if err != nil {
		return nil, errors.Wrap(err, "Memory", "Search", "embed query")
	}
	return ix.rank(vectors[0], limit), nil
}

// BatchSearch runs Search for each query.
func (ix *Index) BatchSearch(ctx context.Context, queries []string, limit int) ([][]index.Result, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	vectors, err := ix.embedder.Generate(ctx, queries)
	if err != nil {
		return nil, errors.Wrap(err, "Memory", "BatchSearch", "embed queries")
	}

	results := make([][]index.Result, len(queries))
	for i, vector := range vectors {
		results[i] = ix.rank(vector, limit)
	}
	return results, nil
}

// Similarity scores texts against query. Result ids are positions in texts,
// sorted by descending score.
func (ix *Index) Similarity(ctx context.Context, query string, texts []string) ([]index.Result, error) {
	results, err := ix.BatchSimilarity(ctx, []string{query}, texts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// BatchSimilarity runs Similarity for each query.
func (ix *Index) BatchSimilarity(ctx context.Context, queries []string, texts []string) ([][]index.Result, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	queryVectors, err := ix.embedder.Generate(ctx, queries)
	if err != nil {
		return nil, errors.Wrap(err, "Memory", "BatchSimilarity", "embed queries")
	}
	textVectors, err := ix.embedder.Generate(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, "Memory", "BatchSimilarity", "embed texts")
	}

	results := make([][]index.Result, len(queries))
	for qi, queryVector := range queryVectors {
		scored := make([]index.Result, len(textVectors))
		for ti, textVector := range textVectors {
			scored[ti] = index.Result{ID: int64(ti), Score: cosine(queryVector, textVector)}
		}
		sort.SliceStable(scored, func(a, b int) bool {
			return scored[a].Score > scored[b].Score
		})
		results[qi] = scored
	}
	return results, nil
}

// Transform embeds a single text into a vector.
func (ix *Index) Transform(ctx context.Context, text string) ([]float64, error) {
	vectors, err := ix.BatchTransform(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// BatchTransform embeds each text into a vector.
func (ix *Index) BatchTransform(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := ix.embedder.Generate(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, "Memory", "BatchTransform", "embed texts")
	}

	results := make([][]float64, len(vectors))
	for i, vector := range vectors {
		converted := make([]float64, len(vector))
		for j, v := range vector {
			converted[j] = float64(v)
		}
		results[i] = converted
	}
	return results, nil
}

// embed converts documents into index entries outside the write lock.
func (ix *Index) embed(ctx context.Context, documents []document.Document) ([]entry, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = doc.Text
	}

	vectors, err := ix.embedder.Generate(ctx, texts)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, len(documents))
	for i, doc := range documents {
		entries[i] = entry{
			id:     index.NormalizeID(doc.ID),
			text:   doc.Text,
			vector: vectors[i],
		}
	}
	return entries, nil
}

// merge applies entries under the write lock, replacing matching ids.
func (ix *Index) merge(entries []entry) {
	for _, e := range entries {
		if pos, ok := ix.byID[e.id]; ok {
			ix.entries[pos] = e
			continue
		}
		ix.byID[e.id] = len(ix.entries)
		ix.entries = append(ix.entries, e)
	}
}

// rank scores every stored entry against the query vector and returns the
// top limit results by descending score.
func (ix *Index) rank(queryVector []float32, limit int) []index.Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return nil
	}

	scored := make([]index.Result, len(ix.entries))
	for i, e := range ix.entries {
		scored[i] = index.Result{ID: e.id, Score: cosine(queryVector, e.vector)}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	if limit > 0 && limit < len(scored) {
		scored = scored[:limit]
	}
	return scored
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
