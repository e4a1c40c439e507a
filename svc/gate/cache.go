package gate

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/creatorkit/pkg/cache"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

// Cache holds one subscription status per session.
type Cache interface {
	Get(ctx context.Context, sessionID string) (organization.SubscriptionStatus, bool, error)
	Set(ctx context.Context, sessionID string, status organization.SubscriptionStatus, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

const defaultKeyPrefix = "gate:session:"

// RedisCache shares gate decisions across application instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache stores statuses under "gate:session:<id>".
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, prefix: defaultKeyPrefix}
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (organization.SubscriptionStatus, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrCacheUnavailable, err)
	}
	return organization.ParseStatus(val), true, nil
}

func (c *RedisCache) Set(ctx context.Context, sessionID string, status organization.SubscriptionStatus, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+sessionID, string(status), ttl).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.prefix+sessionID).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

// MemoryCache is a process-local Cache for development and tests.
type MemoryCache struct {
	lru *cache.LRU[string, organization.SubscriptionStatus]
}

// NewMemoryCache keeps at most capacity sessions.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{lru: cache.NewLRU[string, organization.SubscriptionStatus](capacity)}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) (organization.SubscriptionStatus, bool, error) {
	status, ok := c.lru.Get(sessionID)
	return status, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, sessionID string, status organization.SubscriptionStatus, ttl time.Duration) error {
	c.lru.Set(sessionID, status, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, sessionID string) error {
	c.lru.Delete(sessionID)
	return nil
}
