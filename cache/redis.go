package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on a Redis server.
type RedisCache[T any] struct {
	client  redis.UniversalClient
	options *CacheOptions
	prefix  string
	owned   bool
}

// RedisCacheOptions adds connection settings to the shared options.
type RedisCacheOptions struct {
	CacheOptions

	Username     string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int

	// KeyPrefix namespaces the keys so Clear only touches this cache.
	KeyPrefix string
}

// DefaultRedisCacheOptions returns the default Redis cache options.
func DefaultRedisCacheOptions() *RedisCacheOptions {
	return &RedisCacheOptions{
		CacheOptions: *DefaultCacheOptions(),
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "riakdt:",
	}
}

// NewRedisCache connects to redisAddr and verifies the connection.
func NewRedisCache[T any](redisAddr string, options *RedisCacheOptions) (*RedisCache[T], error) {
	if options == nil {
		options = DefaultRedisCacheOptions()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Username:     options.Username,
		Password:     options.Password,
		DB:           options.DB,
		PoolSize:     options.PoolSize,
		MinIdleConns: options.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewRedisCacheWithClient[T](client, options)
	c.owned = true
	return c, nil
}

// NewRedisCacheWithClient wraps an existing client. Close leaves the
// client open.
func NewRedisCacheWithClient[T any](client redis.UniversalClient, options *RedisCacheOptions) *RedisCache[T] {
	if options == nil {
		options = DefaultRedisCacheOptions()
	}
	base := options.CacheOptions
	return &RedisCache[T]{
		client:  client,
		options: &base,
		prefix:  options.KeyPrefix,
	}
}

// Get returns the value stored under key.
func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, error) {
	var result T

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return result, ErrCacheMiss
		}
		return result, fmt.Errorf("failed to get from Redis: %w", err)
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}
	return result, nil
}

// Set stores data under key.
func (c *RedisCache[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	if err := c.client.Set(ctx, c.key(key), bytes, effectiveTTL(ttl, c.options)).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *RedisCache[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete from Redis: %w", err)
	}
	return nil
}

// Clear removes every key under the cache prefix.
func (c *RedisCache[T]) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan Redis keys: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys from Redis: %w", err)
		}
	}
	return nil
}

// Close closes the client if this cache created it.
func (c *RedisCache[T]) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

func (c *RedisCache[T]) key(key string) string {
	return c.prefix + key
}
