package embedding

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache provides content-addressed caching for embeddings. Keys are hashes of
// the text content, which gives deduplication for free.
type Cache interface {
	// Get retrieves a cached embedding for the given content hash.
	Get(contentHash string) ([]float32, bool)

	// Put stores an embedding under the given content hash.
	Put(contentHash string, embedding []float32)
}

// ContentHash returns the cache key for a text: hex-encoded SHA-256.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// LRUCache is a bounded in-process embedding cache.
type LRUCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUCache creates an embedding cache holding up to size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: cache}, nil
}

// Get retrieves a cached embedding.
func (c *LRUCache) Get(contentHash string) ([]float32, bool) {
	return c.cache.Get(contentHash)
}

// Put stores an embedding.
func (c *LRUCache) Put(contentHash string, embedding []float32) {
	c.cache.Add(contentHash, embedding)
}
