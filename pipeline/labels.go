package pipeline

import (
	"context"
	"fmt"

	"github.com/c360/semindex/embedding"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

// Labels applies zero-shot classification by scoring candidate label texts
// against input text. Result ids are positions into the label list, ordered
// by descending score.
type Labels struct {
	embedder embedding.Embedder
}

func newLabels(config map[string]any, deps Dependencies) (Pipeline, error) {
	return &Labels{embedder: embedderFromConfig(config)}, nil
}

// Embedder exposes the classification model for reuse by other pipelines.
func (l *Labels) Embedder() embedding.Embedder {
	return l.embedder
}

// Classify scores labels for a single text.
func (l *Labels) Classify(ctx context.Context, text string, labels []string) ([]index.Result, error) {
	results, err := rankTexts(ctx, l.embedder, text, labels)
	if err != nil {
		return nil, errors.WrapTransient(err, "Labels", "Classify", "generate embeddings")
	}
	return results, nil
}

// BatchClassify scores labels for each text.
func (l *Labels) BatchClassify(ctx context.Context, texts []string, labels []string) ([][]index.Result, error) {
	vectors, err := l.embedder.Generate(ctx, append(append([]string{}, texts...), labels...))
	if err != nil {
		return nil, errors.WrapTransient(err, "Labels", "BatchClassify", "generate embeddings")
	}

	textVectors := vectors[:len(texts)]
	labelVectors := vectors[len(texts):]

	scores := make([][]index.Result, len(texts))
	for ti, textVector := range textVectors {
		results := make([]index.Result, len(labelVectors))
		for li, labelVector := range labelVectors {
			results[li] = index.Result{ID: int64(li), Score: cosine(textVector, labelVector)}
		}
		sortResults(results)
		scores[ti] = results
	}
	return scores, nil
}

// Run dispatches on argument shape: (text string, labels []string) or
// (texts []string, labels []string). The single text shape returns a single
// result list, the batch shape a list per text.
func (l *Labels) Run(ctx context.Context, args ...any) (any, error) {
	if len(args) != 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("expected (text, labels), got %d arguments", len(args)),
			"Labels", "Run", "validate arguments")
	}

	labels, err := toStrings(args[1])
	if err != nil {
		return nil, errors.WrapInvalid(err, "Labels", "Run", "convert labels")
	}

	switch text := args[0].(type) {
	case string:
		return l.Classify(ctx, text, labels)
	default:
		texts, err := toStrings(args[0])
		if err != nil {
			return nil, errors.WrapInvalid(err, "Labels", "Run", "convert texts")
		}
		return l.BatchClassify(ctx, texts, labels)
	}
}
