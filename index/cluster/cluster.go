// Package cluster implements the shard router: an index.Capability that fans
// operations out to multiple remote index shards over HTTP.
//
// Shards expose the same REST surface as the semindex HTTP gateway, so a
// cluster is simply a set of semindex instances fronted by this router.
// From the gateway's point of view the router is interchangeable with a
// local index.
package cluster

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semindex/document"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

// Config configures the shard router.
type Config struct {
	// Shards lists base URLs of remote index shards
	Shards []string

	// Timeout bounds each shard request (default 30s)
	Timeout time.Duration

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// Router fans index operations out across shards. Mutations route documents
// to shards by id hash; searches fan out to every shard and merge by score.
//
// The router provides no cross-shard locking: consistency of concurrent
// cluster-wide mutations is the responsibility of each shard's own gateway.
type Router struct {
	shards []*shard
	logger *slog.Logger
}

// New creates a shard router from configuration.
func New(cfg Config) (*Router, error) {
	if len(cfg.Shards) == 0 {
		return nil, errors.WrapInvalid(errors.ErrNoShards, "Cluster", "New", "validate shards")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shards := make([]*shard, len(cfg.Shards))
	for i, baseURL := range cfg.Shards {
		shards[i] = newShard(baseURL, cfg.Timeout)
	}

	return &Router{shards: shards, logger: logger}, nil
}

// route picks the shard responsible for an id.
func (r *Router) route(id any) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(idKey(id)))
	return r.shards[int(h.Sum32())%len(r.shards)]
}

// Count sums document counts across all shards. Unreachable shards count as
// zero; a cluster-wide total is best effort by design.
func (r *Router) Count() int {
	total := 0
	for _, s := range r.shards {
		count, err := s.count(context.Background())
		if err != nil {
			r.logger.Warn("shard count failed", "shard", s.baseURL, "error", err)
			continue
		}
		total += count
	}
	return total
}

// Add routes each document to its shard by id hash. Documents without an id
// receive a generated one so routing and later deletes stay consistent.
func (r *Router) Add(ctx context.Context, documents []document.Document) error {
	batches := make(map[*shard][]document.Document)
	for _, doc := range documents {
		if doc.ID == nil {
			doc.ID = uuid.NewString()
		}
		target := r.route(doc.ID)
		batches[target] = append(batches[target], doc)
	}

	for target, batch := range batches {
		if err := target.add(ctx, batch); err != nil {
			return errors.WrapTransient(err, "Cluster", "Add", "shard add")
		}
	}
	return nil
}

// Index triggers a full index build on every shard.
func (r *Router) Index(ctx context.Context, _ []document.Document) error {
	return r.broadcast(ctx, "Index", func(s *shard) error { return s.flush(ctx, "/index") })
}

// Upsert triggers an incremental merge on every shard.
func (r *Router) Upsert(ctx context.Context, _ []document.Document) error {
	return r.broadcast(ctx, "Upsert", func(s *shard) error { return s.flush(ctx, "/upsert") })
}

// Delete routes each id to its shard and merges the deleted ids.
func (r *Router) Delete(ctx context.Context, ids []any) ([]any, error) {
	batches := make(map[*shard][]any)
	for _, id := range ids {
		target := r.route(id)
		batches[target] = append(batches[target], id)
	}

	var deleted []any
	for target, batch := range batches {
		shardDeleted, err := target.delete(ctx, batch)
		if err != nil {
			return nil, errors.WrapTransient(err, "Cluster", "Delete", "shard delete")
		}
		deleted = append(deleted, shardDeleted...)
	}
	return deleted, nil
}

// Search fans the query out to every shard and merges results by descending
// score, trimmed to limit.
func (r *Router) Search(ctx context.Context, query string, limit int) ([]index.Result, error) {
	var merged []index.Result
	for _, s := range r.shards {
		results, err := s.search(ctx, query, limit)
		if err != nil {
			return nil, errors.WrapTransient(err, "Cluster", "Search", "shard search")
		}
		merged = append(merged, results...)
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Score > merged[b].Score
	})
	if limit > 0 && limit < len(merged) {
		merged = merged[:limit]
	}
	return merged, nil
}

// BatchSearch runs the merged search for each query.
func (r *Router) BatchSearch(ctx context.Context, queries []string, limit int) ([][]index.Result, error) {
	results := make([][]index.Result, len(queries))
	for i, query := range queries {
		merged, err := r.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		results[i] = merged
	}
	return results, nil
}

// Similarity delegates to the first shard; any shard can score texts since
// the computation does not touch shard-local documents.
func (r *Router) Similarity(ctx context.Context, query string, texts []string) ([]index.Result, error) {
	results, err := r.shards[0].similarity(ctx, query, texts)
	if err != nil {
		return nil, errors.WrapTransient(err, "Cluster", "Similarity", "shard similarity")
	}
	return results, nil
}

// BatchSimilarity delegates to the first shard.
func (r *Router) BatchSimilarity(ctx context.Context, queries []string, texts []string) ([][]index.Result, error) {
	results, err := r.shards[0].batchSimilarity(ctx, queries, texts)
	if err != nil {
		return nil, errors.WrapTransient(err, "Cluster", "BatchSimilarity", "shard batchsimilarity")
	}
	return results, nil
}

// Transform delegates to the first shard.
func (r *Router) Transform(ctx context.Context, text string) ([]float64, error) {
	vector, err := r.shards[0].transform(ctx, text)
	if err != nil {
		return nil, errors.WrapTransient(err, "Cluster", "Transform", "shard transform")
	}
	return vector, nil
}

// BatchTransform delegates to the first shard.
func (r *Router) BatchTransform(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := r.shards[0].batchTransform(ctx, texts)
	if err != nil {
		return nil, errors.WrapTransient(err, "Cluster", "BatchTransform", "shard batchtransform")
	}
	return vectors, nil
}

// Save is a no-op: each shard persists its own slice of the index according
// to its local configuration.
func (r *Router) Save(string) error { return nil }

// Load is a no-op for the same reason as Save.
func (r *Router) Load(string) error { return nil }

// NeedsScoring always reports false; scoring pre-passes run shard-local.
func (r *Router) NeedsScoring() bool { return false }

// Score is a no-op; see NeedsScoring.
func (r *Router) Score(context.Context, []document.Document) error { return nil }

func (r *Router) broadcast(ctx context.Context, method string, fn func(*shard) error) error {
	for _, s := range r.shards {
		if err := fn(s); err != nil {
			return errors.WrapTransient(err, "Cluster", method, "shard broadcast")
		}
	}
	return nil
}
