// Package embedding provides text embedders for the semantic index.
//
// Two implementations are included: a pure Go lexical embedder based on BM25
// feature hashing, and a client for OpenAI-compatible HTTP embedding services.
// Both produce fixed-dimension vectors suitable for cosine similarity.
package embedding

import "context"

// Embedder generates vector embeddings for text.
//
// Implementations support batch operations natively; for a single text pass a
// slice with one element.
type Embedder interface {
	// Generate creates embeddings for the given texts, one vector per text.
	Generate(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Model returns the model identifier, useful for logging.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Fitter is implemented by embedders that benefit from a corpus-statistics
// pre-pass before a full index build. The local index checks for this
// interface to decide whether a scoring pass is required.
type Fitter interface {
	// Fit ingests corpus statistics without producing vectors.
	Fit(corpus []string)
}
