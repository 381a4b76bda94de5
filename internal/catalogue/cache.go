package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brickmini/storefront/internal/domain"
)

const (
	defaultCacheTTL    = 5 * time.Minute
	defaultCachePrefix = "storefront:catalogue:"
)

// Cache stores successfully loaded product lists.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, products []domain.Product) error
}

// RedisCache keeps product lists as JSON strings with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisCacheOption customises a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithCacheTTL overrides the entry lifetime.
func WithCacheTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCachePrefix overrides the key prefix.
func WithCachePrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		if p := strings.TrimSpace(prefix); p != "" {
			c.prefix = p
		}
	}
}

// NewRedisCache wraps a Redis client.
func NewRedisCache(client redis.UniversalClient, opts ...RedisCacheOption) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("catalogue: redis client is required")
	}
	cache := &RedisCache{client: client, prefix: defaultCachePrefix, ttl: defaultCacheTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.Product, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("catalogue: cache get: %w", err)
	}
	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, false, fmt.Errorf("catalogue: cache decode: %w", err)
	}
	return products, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, products []domain.Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("catalogue: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("catalogue: cache set: %w", err)
	}
	return nil
}
