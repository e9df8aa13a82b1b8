package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

const (
	localCacheSize = 1024
	keyPrefix      = "gateway:integration:"
)

type IntegrationLoader interface {
	FindByCode(ctx context.Context, providerCode string) (*entity.Integration, error)
}

// IntegrationCache is a read-through cache over the integration registry.
// With a nil Redis client it only keeps the in-process TinyLFU tier.
type IntegrationCache struct {
	cache  *cache.Cache
	loader IntegrationLoader
	ttl    time.Duration
}

func NewIntegrationCache(client redis.UniversalClient, loader IntegrationLoader, ttl time.Duration) *IntegrationCache {
	if ttl <= 0 {
		ttl = time.Minute
	}

	opts := &cache.Options{
		LocalCache: cache.NewTinyLFU(localCacheSize, ttl),
	}
	if client != nil {
		opts.Redis = client
	}

	return &IntegrationCache{
		cache:  cache.New(opts),
		loader: loader,
		ttl:    ttl,
	}
}

// FindByCode returns nil, nil for unknown provider codes. Misses are not cached.
func (c *IntegrationCache) FindByCode(ctx context.Context, providerCode string) (*entity.Integration, error) {
	key := keyPrefix + providerCode

	var cached entity.Integration
	err := c.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, err
	}

	item, err := c.loader.FindByCode(ctx, providerCode)
	if err != nil || item == nil {
		return item, err
	}

	if err := c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: item,
		TTL:   c.ttl,
	}); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *IntegrationCache) Invalidate(ctx context.Context, providerCode string) error {
	err := c.cache.Delete(ctx, keyPrefix+providerCode)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
