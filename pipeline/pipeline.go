// Package pipeline provides named computation units invoked by the gateway:
// similarity scoring, zero-shot labeling, question extraction, summarization
// and sentence segmentation.
//
// Pipelines are created once at gateway construction through the Registry and
// are stateless from the gateway's perspective; any heavyweight model state
// lives inside the pipeline instance.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/c360/semindex/embedding"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

// Pipeline is a callable computation unit. Arguments are positional and
// pipeline-specific; scoring pipelines return result sequences, extraction
// pipelines return records.
type Pipeline interface {
	Run(ctx context.Context, args ...any) (any, error)
}

// Dependencies carries shared collaborators available to pipeline factories.
type Dependencies struct {
	// Index is the gateway's index capability; nil when none is configured
	Index index.Capability

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// Factory creates a pipeline instance from its configuration block.
type Factory func(config map[string]any, deps Dependencies) (Pipeline, error)

// Registry maps pipeline names to factories. A registry is populated once at
// startup and read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry pre-populated with the built-in pipelines.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("similarity", newSimilarity)
	r.Register("labels", newLabels)
	r.Register("extractor", newExtractor)
	r.Register("summary", newSummary)
	r.Register("segment", newSegment)
	return r
}

// Register adds a factory under a pipeline name, replacing any previous
// registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Known reports whether a factory is registered under name.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns the registered pipeline names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds a pipeline instance by name. Unknown names fail with
// ErrPipelineNotFound.
func (r *Registry) Create(name string, config map[string]any, deps Dependencies) (Pipeline, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrPipelineNotFound, name),
			"Registry", "Create", "lookup factory")
	}
	if config == nil {
		config = map[string]any{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return factory(config, deps)
}

// embedderFromConfig constructs the embedder a pipeline scores with. The
// "method" key selects the implementation; BM25 is the default since it needs
// no external service.
func embedderFromConfig(config map[string]any) embedding.Embedder {
	method, _ := config["method"].(string)

	switch method {
	case "openai":
		cfg := embedding.OpenAIConfig{}
		if model, ok := config["model"].(string); ok {
			cfg.Model = model
		}
		if baseURL, ok := config["baseurl"].(string); ok {
			cfg.BaseURL = baseURL
		}
		if keyEnv, ok := config["apikeyenv"].(string); ok {
			cfg.APIKeyEnv = keyEnv
		}
		return embedding.NewOpenAIEmbedder(cfg)
	default:
		cfg := embedding.BM25Config{}
		if dims, ok := config["dimensions"].(int); ok {
			cfg.Dimensions = dims
		}
		return embedding.NewBM25Embedder(cfg)
	}
}

// rankTexts scores texts against a query with the given embedder, returning
// results sorted by descending score with ids as positions in texts.
func rankTexts(ctx context.Context, embedder embedding.Embedder, query string, texts []string) ([]index.Result, error) {
	vectors, err := embedder.Generate(ctx, append([]string{query}, texts...))
	if err != nil {
		return nil, err
	}

	queryVector := vectors[0]
	results := make([]index.Result, len(texts))
	for i, textVector := range vectors[1:] {
		results[i] = index.Result{ID: int64(i), Score: cosine(queryVector, textVector)}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results, nil
}

func sortResults(results []index.Result) {
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
}

// toStrings converts []string or []any-of-strings argument values.
func toStrings(v any) ([]string, error) {
	switch tv := v.(type) {
	case []string:
		return tv, nil
	case []any:
		out := make([]string, len(tv))
		for i, item := range tv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want string", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to []string", v)
	}
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
