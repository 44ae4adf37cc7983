package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// BM25Embedder implements pure Go lexical embeddings using BM25 weighting.
//
// It generates fixed-dimension vectors by tokenizing text, computing term
// frequencies, hashing terms to dimensions (feature hashing), applying BM25
// weighting and L2 normalizing the result. This is a lexical approach: it
// favors exact term overlap rather than semantic similarity, but it needs no
// external model or service, which makes it the default embedder.
//
// Corpus statistics (document frequencies, average document length) can be
// built up front with Fit or accumulate incrementally as texts are embedded.
type BM25Embedder struct {
	dimensions int
	k1         float64 // Term frequency saturation parameter (typically 1.2-2.0)
	b          float64 // Length normalization parameter (typically 0.75)

	// Document statistics
	mu             sync.RWMutex
	docCount       int
	avgDocLength   float64
	termDocCount   map[string]int // Number of documents containing each term
	totalDocLength int
}

// BM25Config configures the BM25 embedder.
type BM25Config struct {
	// Dimensions is the output embedding dimension (default: 384)
	Dimensions int

	// K1 controls term frequency saturation (default: 1.5)
	K1 float64

	// B controls document length normalization (default: 0.75)
	B float64
}

// NewBM25Embedder creates a new BM25-based embedder.
func NewBM25Embedder(cfg BM25Config) *BM25Embedder {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384 // Match common neural embedding models
	}
	if cfg.K1 == 0 {
		cfg.K1 = 1.5
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}

	return &BM25Embedder{
		dimensions:   cfg.Dimensions,
		k1:           cfg.K1,
		b:            cfg.B,
		termDocCount: make(map[string]int),
	}
}

// Fit ingests corpus statistics for IDF weighting without producing vectors.
func (b *BM25Embedder) Fit(corpus []string) {
	for _, text := range corpus {
		b.updateStats(b.tokenize(text))
	}
}

// Generate creates BM25-based embeddings for the given texts.
//
// Statistics update incrementally, so the embedder learns vocabulary and IDF
// scores from all texts it processes.
func (b *BM25Embedder) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embeddings := make([][]float32, len(texts))

	for i, text := range texts {
		// Check for cancellation periodically on large batches
		if i%100 == 99 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		tokens := b.tokenize(text)
		if len(tokens) == 0 {
			embeddings[i] = make([]float32, b.dimensions)
			continue
		}

		embeddings[i] = b.computeVector(b.termFrequencies(tokens), len(tokens))
		b.updateStats(tokens)
	}

	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (b *BM25Embedder) Dimensions() int {
	return b.dimensions
}

// Model returns the model identifier.
func (b *BM25Embedder) Model() string {
	return fmt.Sprintf("bm25-k%.1f-b%.2f", b.k1, b.b)
}

// Close releases resources (no-op for BM25).
func (b *BM25Embedder) Close() error {
	return nil
}

// tokenize splits text into lowercase tokens: split on non-alphanumeric,
// filter tokens shorter than two runes.
func (b *BM25Embedder) tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= 2 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			_, _ = current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

func (b *BM25Embedder) termFrequencies(tokens []string) map[string]int {
	termFreq := make(map[string]int)
	for _, token := range tokens {
		termFreq[token]++
	}
	return termFreq
}

func (b *BM25Embedder) updateStats(tokens []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.docCount++
	b.totalDocLength += len(tokens)
	b.avgDocLength = float64(b.totalDocLength) / float64(b.docCount)

	// Count each term once per document
	seen := make(map[string]bool)
	for _, token := range tokens {
		if !seen[token] {
			b.termDocCount[token]++
			seen[token] = true
		}
	}
}

// computeVector generates an embedding using BM25 scoring over hashed
// dimensions, then L2 normalizes for cosine similarity compatibility.
func (b *BM25Embedder) computeVector(termFreq map[string]int, docLength int) []float32 {
	vector := make([]float32, b.dimensions)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for term, tf := range termFreq {
		dim := b.hashTerm(term)

		var idf float64
		if b.docCount == 0 {
			idf = 1.0
		} else {
			df := b.termDocCount[term]
			if df == 0 {
				df = 1 // Smoothing for unseen terms
			}
			// Robertson-Sparck Jones IDF
			idf = math.Log((float64(b.docCount-df) + 0.5) / (float64(df) + 0.5))
			if idf < 0.01 {
				idf = 0.01
			}
		}

		// BM25 term weight with length normalization
		norm := 1 - b.b + b.b*float64(docLength)/math.Max(b.avgDocLength, 1)
		weight := idf * (float64(tf) * (b.k1 + 1)) / (float64(tf) + b.k1*norm)

		vector[dim] += float32(weight)
	}

	// L2 normalize
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		magnitude := float32(math.Sqrt(sum))
		for i := range vector {
			vector[i] /= magnitude
		}
	}

	return vector
}

// hashTerm maps a term to a dimension index via FNV-1a.
func (b *BM25Embedder) hashTerm(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(b.dimensions))
}
