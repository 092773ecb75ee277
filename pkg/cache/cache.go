package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache is a key-value store with TTLs and glob deletes
type Cache interface {
	// Get decodes the value stored at key into dest. found is false on a miss.
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)

	// Set stores value at key for ttl
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del removes a single key
	Del(ctx context.Context, key string) error

	// DelPattern removes every key matching a glob such as user:*:permissions
	DelPattern(ctx context.Context, pattern string) error

	// IsAvailable reports whether a real backend is configured
	IsAvailable() bool
}

// ErrCorruptEntry is wrapped when a stored value cannot be decoded
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Error describes a failed cache operation
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCacheError reports whether err came from the cache layer
func IsCacheError(err error) bool {
	var cacheErr *Error
	return errors.As(err, &cacheErr)
}

func newError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}
