package utils

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheEntries = 256

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process LRU used for previews when Redis is not
// configured. Entries carry their own expiry.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache keeps at most size entries. A non-positive size uses 256.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = defaultMemoryCacheEntries
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{entries: entries, now: time.Now}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return e.data, true
}

// Set stores b for ttl, or the default hour when ttl is not positive.
func (c *MemoryCache) Set(_ context.Context, key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c.entries.Add(key, memoryEntry{data: b, expiresAt: c.now().Add(ttl)})
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.entries.Remove(key)
}

// Len reports the number of live and not yet evicted entries.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
