package pipeline

import (
	"context"
	"fmt"

	"github.com/c360/semindex/embedding"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

// Similarity scores texts against queries with an embedder. Result ids are
// positions into the input text list, ordered by descending score.
type Similarity struct {
	embedder embedding.Embedder
}

func newSimilarity(config map[string]any, deps Dependencies) (Pipeline, error) {
	return &Similarity{embedder: embedderFromConfig(config)}, nil
}

// NewSimilarity builds a similarity pipeline around an existing embedder so
// construction can share another pipeline's model.
func NewSimilarity(embedder embedding.Embedder) *Similarity {
	return &Similarity{embedder: embedder}
}

// Compare ranks texts against a single query.
func (s *Similarity) Compare(ctx context.Context, query string, texts []string) ([]index.Result, error) {
	results, err := rankTexts(ctx, s.embedder, query, texts)
	if err != nil {
		return nil, errors.WrapTransient(err, "Similarity", "Compare", "generate embeddings")
	}
	return results, nil
}

// BatchCompare ranks texts against each query.
func (s *Similarity) BatchCompare(ctx context.Context, queries []string, texts []string) ([][]index.Result, error) {
	// Embed queries and texts in one pass, then score per query
	vectors, err := s.embedder.Generate(ctx, append(append([]string{}, queries...), texts...))
	if err != nil {
		return nil, errors.WrapTransient(err, "Similarity", "BatchCompare", "generate embeddings")
	}

	queryVectors := vectors[:len(queries)]
	textVectors := vectors[len(queries):]

	scores := make([][]index.Result, len(queries))
	for qi, queryVector := range queryVectors {
		results := make([]index.Result, len(textVectors))
		for ti, textVector := range textVectors {
			results[ti] = index.Result{ID: int64(ti), Score: cosine(queryVector, textVector)}
		}
		sortResults(results)
		scores[qi] = results
	}
	return scores, nil
}

// Run dispatches on argument shape: (query string, texts []string) or
// (queries []string, texts []string).
func (s *Similarity) Run(ctx context.Context, args ...any) (any, error) {
	if len(args) != 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("expected (query, texts), got %d arguments", len(args)),
			"Similarity", "Run", "validate arguments")
	}

	texts, err := toStrings(args[1])
	if err != nil {
		return nil, errors.WrapInvalid(err, "Similarity", "Run", "convert texts")
	}

	switch query := args[0].(type) {
	case string:
		return s.Compare(ctx, query, texts)
	default:
		queries, err := toStrings(args[0])
		if err != nil {
			return nil, errors.WrapInvalid(err, "Similarity", "Run", "convert queries")
		}
		return s.BatchCompare(ctx, queries, texts)
	}
}
