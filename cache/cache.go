// Package cache stores fetched data type documents between requests.
//
// Three implementations share the Cache interface:
//   - MemoryCache: process-local map with TTL and a size bound
//   - BadgerCache: on-disk cache backed by BadgerDB, survives restarts
//   - RedisCache: shared cache for several client processes
//
// Values are encoded as JSON by the persistent implementations, so T must
// round-trip through encoding/json.
//
// Basic usage:
//
//	responses := cache.NewMemoryCache[*backend.CachedResponse](nil)
//	defer responses.Close()
//
//	err := responses.Set(ctx, "/types/maps/buckets/b/datatypes/k", resp, time.Minute)
//	resp, err := responses.Get(ctx, "/types/maps/buckets/b/datatypes/k")
//	if errors.Is(err, cache.ErrCacheMiss) {
//	    // fetch from the store
//	}
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheClosed is returned by operations on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrSerializationFailed is returned when a value cannot be encoded.
	ErrSerializationFailed = errors.New("failed to serialize cache value")

	// ErrDeserializationFailed is returned when a stored value cannot be decoded.
	ErrDeserializationFailed = errors.New("failed to deserialize cache value")
)

// Cache is the interface for caching values of type T by string key.
type Cache[T any] interface {
	// Get returns the cached value, or ErrCacheMiss.
	Get(ctx context.Context, key string) (T, error)

	// Set stores a value. A ttl of 0 uses the cache's default TTL.
	Set(ctx context.Context, key string, data T, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key owned by this cache.
	Clear(ctx context.Context) error

	// Close releases the cache's resources.
	Close() error
}

// CacheOptions is shared by all implementations.
type CacheOptions struct {
	// DefaultTTL applies when Set is called with a zero ttl.
	// Zero means entries never expire.
	DefaultTTL time.Duration

	// MaxItems bounds the memory cache. Zero means unbounded.
	MaxItems int
}

// DefaultCacheOptions returns a five-minute TTL and a 10,000 item bound.
// Data type values change under other writers, so entries are short-lived.
func DefaultCacheOptions() *CacheOptions {
	return &CacheOptions{
		DefaultTTL: 5 * time.Minute,
		MaxItems:   10000,
	}
}

func effectiveTTL(ttl time.Duration, options *CacheOptions) time.Duration {
	if ttl <= 0 {
		return options.DefaultTTL
	}
	return ttl
}
