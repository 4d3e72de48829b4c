package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEntry mirrors the shape of a cached store response.
type testEntry struct {
	Path   string `json:"path"`
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

func newTestEntry(path string) *testEntry {
	return &testEntry{Path: path, Status: 200, Body: []byte(`{"value":3}`)}
}

// skipIfNoRedis skips the test if Redis is not available.
func skipIfNoRedis(t *testing.T) string {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	c, err := NewRedisCache[*testEntry](redisAddr, nil)
	if err != nil {
		t.Skipf("Skipping Redis test: %v", err)
		return ""
	}
	c.Close()
	return redisAddr
}

// exerciseCache runs the behaviour every implementation shares.
func exerciseCache(t *testing.T, c Cache[*testEntry]) {
	ctx := context.Background()

	_, err := c.Get(ctx, "/types/maps/buckets/b/datatypes/missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.ErrorIs(t, c.Set(ctx, "", newTestEntry("x"), 0), ErrInvalidKey)

	key := "/types/maps/buckets/b/datatypes/" + uuid.NewString()
	require.NoError(t, c.Set(ctx, key, newTestEntry(key), time.Hour))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, got.Path)
	assert.Equal(t, 200, got.Status)
	assert.JSONEq(t, `{"value":3}`, string(got.Body))

	require.NoError(t, c.Delete(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting an absent key is fine.
	assert.NoError(t, c.Delete(ctx, key))

	require.NoError(t, c.Set(ctx, "a", newTestEntry("a"), 0))
	require.NoError(t, c.Set(ctx, "b", newTestEntry("b"), 0))
	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
