package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(maxItems int) *MemoryCache[*testEntry] {
	return NewMemoryCacheWithOptions[*testEntry](&MemoryCacheOptions{
		CacheOptions: CacheOptions{DefaultTTL: time.Minute, MaxItems: maxItems},
	})
}

func TestMemoryCacheBasicOperations(t *testing.T) {
	c := newTestMemoryCache(100)
	defer c.Close()

	exerciseCache(t, c)
}

func TestMemoryCacheExpiration(t *testing.T) {
	c := newTestMemoryCache(100)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", newTestEntry("short"), time.Second))
	require.NoError(t, c.Set(ctx, "default", newTestEntry("default"), 0))

	now = now.Add(2 * time.Second)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = c.Get(ctx, "default")
	assert.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "default")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheEviction(t *testing.T) {
	c := newTestMemoryCache(2)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", newTestEntry("a"), 0))
	now = now.Add(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", newTestEntry("b"), 0))
	now = now.Add(time.Millisecond)

	// Touch a so b becomes the oldest.
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	now = now.Add(time.Millisecond)

	require.NoError(t, c.Set(ctx, "c", newTestEntry("c"), 0))
	assert.Equal(t, 2, c.Len())

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)

	// Overwriting an existing key never evicts.
	require.NoError(t, c.Set(ctx, "c", newTestEntry("c2"), 0))
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCacheClosed(t *testing.T) {
	c := NewMemoryCache[*testEntry](nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx := context.Background()
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.ErrorIs(t, c.Set(ctx, "a", newTestEntry("a"), 0), ErrCacheClosed)
	assert.ErrorIs(t, c.Delete(ctx, "a"), ErrCacheClosed)
	assert.ErrorIs(t, c.Clear(ctx), ErrCacheClosed)
}

func TestMemoryCacheSweep(t *testing.T) {
	c := NewMemoryCacheWithOptions[*testEntry](&MemoryCacheOptions{
		CacheOptions:    CacheOptions{MaxItems: 10},
		CleanupInterval: 10 * time.Millisecond,
	})
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "a", newTestEntry("a"), 20*time.Millisecond))
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}
