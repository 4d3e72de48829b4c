package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem[T any] struct {
	data       T
	expiresAt  time.Time
	lastAccess time.Time
}

func (i memoryItem[T]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// MemoryCache implements Cache with an in-process map.
type MemoryCache[T any] struct {
	mu      sync.Mutex
	items   map[string]memoryItem[T]
	options *CacheOptions
	closed  bool
	stop    chan struct{}
	now     func() time.Time
}

// MemoryCacheOptions adds the sweep interval to the shared options.
type MemoryCacheOptions struct {
	CacheOptions

	// CleanupInterval is how often expired items are swept.
	CleanupInterval time.Duration
}

// DefaultMemoryCacheOptions returns the default memory cache options.
func DefaultMemoryCacheOptions() *MemoryCacheOptions {
	return &MemoryCacheOptions{
		CacheOptions:    *DefaultCacheOptions(),
		CleanupInterval: time.Minute,
	}
}

// NewMemoryCache creates a memory cache with the shared options.
func NewMemoryCache[T any](options *CacheOptions) *MemoryCache[T] {
	if options == nil {
		options = DefaultCacheOptions()
	}
	return NewMemoryCacheWithOptions[T](&MemoryCacheOptions{
		CacheOptions:    *options,
		CleanupInterval: time.Minute,
	})
}

// NewMemoryCacheWithOptions creates a memory cache and starts its sweeper.
func NewMemoryCacheWithOptions[T any](options *MemoryCacheOptions) *MemoryCache[T] {
	if options == nil {
		options = DefaultMemoryCacheOptions()
	}
	base := options.CacheOptions

	c := &MemoryCache[T]{
		items:   make(map[string]memoryItem[T]),
		options: &base,
		stop:    make(chan struct{}),
		now:     time.Now,
	}

	if options.CleanupInterval > 0 {
		go c.sweep(options.CleanupInterval)
	}
	return c
}

// Get returns the value stored under key.
func (c *MemoryCache[T]) Get(ctx context.Context, key string) (T, error) {
	var empty T

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return empty, ErrCacheClosed
	}

	item, ok := c.items[key]
	if !ok {
		return empty, ErrCacheMiss
	}

	now := c.now()
	if item.expired(now) {
		delete(c.items, key)
		return empty, ErrCacheMiss
	}

	item.lastAccess = now
	c.items[key] = item
	return item.data, nil
}

// Set stores data under key, evicting the least recently used item when
// the cache is full.
func (c *MemoryCache[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	now := c.now()
	item := memoryItem[T]{data: data, lastAccess: now}
	if ttl = effectiveTTL(ttl, c.options); ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}

	if _, exists := c.items[key]; !exists && c.options.MaxItems > 0 && len(c.items) >= c.options.MaxItems {
		c.evictOldest()
	}

	c.items[key] = item
	return nil
}

func (c *MemoryCache[T]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, item := range c.items {
		if oldestKey == "" || item.lastAccess.Before(oldest) {
			oldestKey = k
			oldest = item.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

// Delete removes key.
func (c *MemoryCache[T]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}
	delete(c.items, key)
	return nil
}

// Clear removes all items.
func (c *MemoryCache[T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}
	c.items = make(map[string]memoryItem[T])
	return nil
}

// Len returns the number of stored items, expired ones included.
func (c *MemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the sweeper and drops all items.
func (c *MemoryCache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.items = nil
	close(c.stop)
	return nil
}

func (c *MemoryCache[T]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, item := range c.items {
				if item.expired(now) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
