package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache stores vectors by content hash so unchanged chunk text is not
// re-embedded on re-ingestion.
type Cache interface {
	Get(key string) ([]float32, bool)
	Put(key string, vector []float32)
}

// Key returns the cache key for a text: the hex SHA-256 of its bytes.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local Cache safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]float32)}
}

func (c *MemoryCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *MemoryCache) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = vector
}

// Len reports how many vectors the cache holds.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
