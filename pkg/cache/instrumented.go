package cache

import (
	"context"
	"time"
)

// Recorder receives cache operation outcomes. observability.Metrics
// implements it.
type Recorder interface {
	RecordCacheOperation(op, result string)
}

// Outcome labels passed to Recorder
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultOK    = "ok"
	ResultError = "error"
)

type instrumentedCache struct {
	Cache
	recorder Recorder
}

// WithRecorder wraps c so every operation is reported to r. A nil recorder
// returns c unchanged.
func WithRecorder(c Cache, r Recorder) Cache {
	if r == nil {
		return c
	}
	return &instrumentedCache{Cache: c, recorder: r}
}

func (c *instrumentedCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	found, err := c.Cache.Get(ctx, key, dest)
	switch {
	case err != nil:
		c.recorder.RecordCacheOperation("get", ResultError)
	case found:
		c.recorder.RecordCacheOperation("get", ResultHit)
	default:
		c.recorder.RecordCacheOperation("get", ResultMiss)
	}
	return found, err
}

func (c *instrumentedCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	err := c.Cache.Set(ctx, key, value, ttl)
	c.recorder.RecordCacheOperation("set", outcome(err))
	return err
}

func (c *instrumentedCache) Del(ctx context.Context, key string) error {
	err := c.Cache.Del(ctx, key)
	c.recorder.RecordCacheOperation("del", outcome(err))
	return err
}

func (c *instrumentedCache) DelPattern(ctx context.Context, pattern string) error {
	err := c.Cache.DelPattern(ctx, pattern)
	c.recorder.RecordCacheOperation("delpattern", outcome(err))
	return err
}

func outcome(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
