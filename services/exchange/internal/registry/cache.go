package registry

import (
	"context"
	"errors"
	"time"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

const (
	ownerKeyPrefix  = "dsx:registry:owner:"
	existsKeyPrefix = "dsx:registry:exists:"
)

// CachedClient is a Redis read-through cache in front of a registry client.
// Cache failures degrade to direct lookups; a stale or unreachable cache must
// never block order flow, and negative ownership results are not cached.
type CachedClient struct {
	inner  engine.AssetRegistry
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedClient(inner engine.AssetRegistry, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClient{
		inner:  inner,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedClient) OwnershipOf(ctx context.Context, asset engine.ID) (uuid.UUID, error) {
	key := ownerKeyPrefix + asset.String()
	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		if owner, parseErr := uuid.Parse(cached); parseErr == nil {
			return owner, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("registry owner cache read failed", "asset", asset.String(), "error", err)
	}

	owner, err := c.inner.OwnershipOf(ctx, asset)
	if err != nil {
		return uuid.Nil, err
	}
	if err := c.redis.Set(ctx, key, owner.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("registry owner cache write failed", "asset", asset.String(), "error", err)
	}
	return owner, nil
}

func (c *CachedClient) AssetExists(ctx context.Context, asset engine.ID) (bool, error) {
	key := existsKeyPrefix + asset.String()
	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		return cached == "1", nil
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("registry exists cache read failed", "asset", asset.String(), "error", err)
	}

	exists, err := c.inner.AssetExists(ctx, asset)
	if err != nil {
		return false, err
	}
	val := "0"
	if exists {
		val = "1"
	}
	if err := c.redis.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("registry exists cache write failed", "asset", asset.String(), "error", err)
	}
	return exists, nil
}
