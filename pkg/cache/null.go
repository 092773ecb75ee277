package cache

import (
	"context"
	"time"
)

// NullCache is used when no backend is configured. Reads always miss and
// writes are dropped.
type NullCache struct{}

// NewNullCache creates a disabled cache
func NewNullCache() *NullCache {
	return &NullCache{}
}

func (NullCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, nil
}

func (NullCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (NullCache) Del(ctx context.Context, key string) error {
	return nil
}

func (NullCache) DelPattern(ctx context.Context, pattern string) error {
	return nil
}

func (NullCache) IsAvailable() bool {
	return false
}
