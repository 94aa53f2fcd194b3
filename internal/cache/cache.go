// Package cache defines the ephemeral key-value contract used for
// response caching, metrics buffering, and rate limiting.
package cache

import (
	"context"
	"time"
)

// Cache is a fast, TTL-bearing key-value store. Implementations must
// make IncrBy atomic: concurrent increments of one key never lose
// updates. A zero or negative ttl means "no expiry".
type Cache interface {
	// Get returns the value stored under key, if present and unexpired.
	Get(ctx context.Context, key string) (any, bool, error)
	// Set stores value under key with the given ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// IncrBy atomically adds delta to the integer counter at key and
	// returns the new value. A missing key counts from zero; ttl is
	// applied only when the key is created.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// GetInt64 returns the counter at key, or ok=false if absent.
	GetInt64(ctx context.Context, key string) (int64, bool, error)

	// SAdd adds member to the set at key; ttl applies on creation.
	SAdd(ctx context.Context, key, member string, ttl time.Duration) error
	// SCard returns the cardinality of the set at key (0 if absent).
	SCard(ctx context.Context, key string) (int, error)
}
