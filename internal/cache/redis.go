package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/catalog"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

var (
	// ErrCacheMiss is returned when the key is not cached
	ErrCacheMiss = errors.New("key not found in cache")
	// ErrCacheDisabled is returned by every call on a disabled cache
	ErrCacheDisabled = errors.New("cache is disabled")
)

// RedisCache provides caching using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{
		client:  client,
		enabled: true,
		ttl:     cfg.TTL,
	}, nil
}

// Enabled reports whether calls reach Redis
func (c *RedisCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.Enabled() {
		return ErrCacheDisabled
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return ErrCacheDisabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() {
		return ErrCacheDisabled
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "failed to delete value from Redis")
	}
	return nil
}

// GetProduct returns the cached snapshot of a product
func (c *RedisCache) GetProduct(ctx context.Context, id string) (catalog.Snapshot, error) {
	var snapshot catalog.Snapshot
	err := c.Get(ctx, GetProductCacheKey(id), &snapshot)
	return snapshot, err
}

// SetProduct caches a product snapshot with the configured TTL
func (c *RedisCache) SetProduct(ctx context.Context, snapshot catalog.Snapshot) error {
	return c.Set(ctx, GetProductCacheKey(snapshot.ID), snapshot, c.ttl)
}

// InvalidateProduct drops a cached product
func (c *RedisCache) InvalidateProduct(ctx context.Context, id string) error {
	return c.Delete(ctx, GetProductCacheKey(id))
}

// GetProductCacheKey generates a cache key for product data
func GetProductCacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.Enabled() || c.client == nil {
		return nil
	}
	return c.client.Close()
}
