package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls an external OpenAI-compatible embedding service.
//
// Works with OpenAI itself as well as self-hosted services exposing the same
// API (TEI, LocalAI). Uses the standard OpenAI SDK for compatibility.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	cache      Cache
	logger     *slog.Logger
}

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	// BaseURL is the base URL of the embedding service
	// (default "https://api.openai.com/v1")
	BaseURL string

	// Model is the embedding model (default "text-embedding-3-small")
	Model string

	// APIKeyEnv names the environment variable holding the API key
	// (default "OPENAI_API_KEY"); local services accept a dummy key
	APIKeyEnv string

	// Dimensions declares the vector size the model produces (default 1536)
	Dimensions int

	// Timeout bounds each HTTP request (default 30s)
	Timeout time.Duration

	// Cache for embedding results (optional)
	Cache Cache

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// NewOpenAIEmbedder creates a new OpenAI-compatible embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		apiKey = "dummy-key" // Local services don't need a real key
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// Generate creates embeddings by calling the external service, consulting the
// cache first when one is configured.
func (e *OpenAIEmbedder) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embeddings := make([][]float32, len(texts))
	var uncachedIndexes []int
	var uncachedTexts []string

	if e.cache != nil {
		for i, text := range texts {
			if cached, ok := e.cache.Get(ContentHash(text)); ok {
				embeddings[i] = cached
				continue
			}
			uncachedIndexes = append(uncachedIndexes, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	} else {
		uncachedIndexes = make([]int, len(texts))
		for i := range texts {
			uncachedIndexes[i] = i
		}
		uncachedTexts = texts
	}

	if len(uncachedTexts) > 0 {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: uncachedTexts,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("embedding API call failed: %w", err)
		}
		if len(resp.Data) != len(uncachedTexts) {
			return nil, fmt.Errorf("API returned %d embeddings for %d texts", len(resp.Data), len(uncachedTexts))
		}

		for i, data := range resp.Data {
			original := uncachedIndexes[i]
			embeddings[original] = data.Embedding

			// Trust the service over the configured dimensions
			if len(data.Embedding) > 0 && e.dimensions != len(data.Embedding) {
				e.logger.Debug("detected embedding dimensions",
					"configured", e.dimensions, "actual", len(data.Embedding))
				e.dimensions = len(data.Embedding)
			}

			if e.cache != nil {
				e.cache.Put(ContentHash(uncachedTexts[i]), data.Embedding)
			}
		}
	}

	return embeddings, nil
}

// Dimensions returns the dimensionality of produced vectors.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model identifier.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Close releases resources (no-op for HTTP clients).
func (e *OpenAIEmbedder) Close() error {
	return nil
}
