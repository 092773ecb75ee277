package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const scanBatchSize = 100

// RedisConfig configures the Redis backend
type RedisConfig struct {
	URL      string // redis:// or rediss:// URL
	Token    string // auth token, sent as the Redis password
	PoolSize int
	Timeout  time.Duration
}

// RedisCache stores JSON-encoded values in Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Token != "" {
		opts.Password = cfg.Token
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout

	// Failures are reported to the caller, never retried here.
	opts.MaxRetries = -1

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves and decodes a value
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, newError("get", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// Drop the corrupt value so the next read repopulates it
		c.client.Del(ctx, key)
		return false, newError("get", key, fmt.Errorf("%w: %v", ErrCorruptEntry, err))
	}

	return true, nil
}

// Set encodes and stores a value with a TTL
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return newError("set", key, fmt.Errorf("failed to marshal value: %w", err))
	}

	return newError("set", key, c.client.Set(ctx, key, data, ttl).Err())
}

// Del removes a key
func (c *RedisCache) Del(ctx context.Context, key string) error {
	return newError("del", key, c.client.Del(ctx, key).Err())
}

// DelPattern removes all keys matching pattern using SCAN
func (c *RedisCache) DelPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()

	batch := make([]string, 0, scanBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return newError("delpattern", pattern, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return newError("delpattern", pattern, fmt.Errorf("scan failed: %w", err))
	}

	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return newError("delpattern", pattern, err)
		}
	}

	return nil
}

// IsAvailable always reports true for a connected client
func (c *RedisCache) IsAvailable() bool {
	return true
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
