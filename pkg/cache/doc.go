// Package cache provides the key-value cache used by the permission and
// territory engines.
//
// # Overview
//
// Every backend implements the Cache interface:
//
//	Get(ctx, key, dest)            read and JSON-decode into dest
//	Set(ctx, key, value, ttl)      JSON-encode and store with a TTL
//	Del(ctx, key)                  delete one key
//	DelPattern(ctx, pattern)       delete every key matching a glob
//	IsAvailable()                  false only for the null backend
//
// Backends:
//
//	RedisCache   go-redis client, SCAN+DEL for pattern deletes
//	MemoryCache  in-process LRU with per-entry TTLs (single replica / development)
//	NullCache    disabled mode, every call is a no-op miss
//
// The cache is never a source of truth. Callers must stay correct when
// every Get misses.
//
// # Errors
//
// Backend failures come back as *Error carrying the operation and key.
// No retries are performed here; each caller decides whether a cache
// failure is fatal (territory lookups) or recoverable (permission reads).
//
//	found, err := c.Get(ctx, "user:42:permissions", &perms)
//	if err != nil {
//		// fall back to the store
//	}
//
// # Related Packages
//
//   - pkg/permissions: permission set caching
//   - pkg/territory: branch id caching
package cache
