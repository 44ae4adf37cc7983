// Package index defines the capability interface satisfied by both the local
// semantic index and the cluster shard router. The gateway holds exactly one
// Capability instance and performs no type inspection, so local and
// distributed deployments are interchangeable.
package index

import (
	"context"
	"encoding/json"

	"github.com/c360/semindex/document"
)

// Result is the canonical search result record: the document id (or position
// for similarity operations) and its relevance score. Results arrive sorted
// by descending score; consumers must preserve that order.
type Result struct {
	ID    any     `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

// Capability abstracts a thing that can search and mutate a semantic index.
// It is satisfied by the local in-process index (index/memory) and by the
// cluster router (index/cluster); both expose the same operation set and
// result shapes so the gateway needs no translation logic.
type Capability interface {
	// Count returns the total number of indexed documents.
	Count() int

	// Search finds the documents most similar to query, best first.
	Search(ctx context.Context, query string, limit int) ([]Result, error)

	// BatchSearch runs Search for each query.
	BatchSearch(ctx context.Context, queries []string, limit int) ([][]Result, error)

	// Similarity scores texts against query. Result IDs are positions in
	// texts, sorted by descending score.
	Similarity(ctx context.Context, query string, texts []string) ([]Result, error)

	// BatchSimilarity runs Similarity for each query.
	BatchSimilarity(ctx context.Context, queries []string, texts []string) ([][]Result, error)

	// Transform embeds a single text into a vector.
	Transform(ctx context.Context, text string) ([]float64, error)

	// BatchTransform embeds each text into a vector.
	BatchTransform(ctx context.Context, texts []string) ([][]float64, error)

	// Add incrementally merges a document batch into the index.
	Add(ctx context.Context, documents []document.Document) error

	// Index rebuilds the index from the given documents only.
	Index(ctx context.Context, documents []document.Document) error

	// Upsert incrementally merges documents, replacing matching ids.
	Upsert(ctx context.Context, documents []document.Document) error

	// Delete removes documents by id, returning the ids actually deleted.
	Delete(ctx context.Context, ids []any) ([]any, error)

	// Save persists the index to path.
	Save(path string) error

	// Load restores the index from path.
	Load(path string) error

	// NeedsScoring reports whether a scoring pre-pass is required before a
	// full index build.
	NeedsScoring() bool

	// Score runs the scoring pre-pass over the documents about to be indexed.
	Score(ctx context.Context, documents []document.Document) error
}

// NormalizeID canonicalizes document ids so that values survive JSON and
// storage round trips with equality intact: every integer kind becomes int64,
// integral floats become int64, json.Number is resolved, strings pass through.
func NormalizeID(id any) any {
	switch v := id.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return v.String()
	default:
		return id
	}
}

func normalizeFloat(f float64) any {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}
