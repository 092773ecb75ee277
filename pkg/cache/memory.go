package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the entry limit used when none is configured
const DefaultMemorySize = 10000

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process cache backed by an LRU. Values are stored
// JSON-encoded so callers never share mutable state with the cache. Each
// Set carries its own TTL, checked lazily on Get.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache creates a memory cache holding at most size entries
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultMemorySize
	}

	// lru.New only fails for a non-positive size
	entries, _ := lru.New[string, memoryEntry](size)
	return &MemoryCache{
		entries: entries,
		now:     time.Now,
	}
}

// Get retrieves and decodes a value
func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return false, nil
	}

	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return false, nil
	}

	if err := json.Unmarshal(entry.data, dest); err != nil {
		c.entries.Remove(key)
		return false, newError("get", key, fmt.Errorf("%w: %v", ErrCorruptEntry, err))
	}

	return true, nil
}

// Set encodes and stores a value. A non-positive ttl never expires.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return newError("set", key, fmt.Errorf("failed to marshal value: %w", err))
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)

	return nil
}

// Del removes a key
func (c *MemoryCache) Del(ctx context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// DelPattern removes all keys matching a glob pattern
func (c *MemoryCache) DelPattern(ctx context.Context, pattern string) error {
	for _, key := range c.entries.Keys() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return newError("delpattern", pattern, err)
		}
		if matched {
			c.entries.Remove(key)
		}
	}
	return nil
}

// IsAvailable always reports true
func (c *MemoryCache) IsAvailable() bool {
	return true
}

// Len returns the number of stored entries, expired ones included until read
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
