package identity

import (
	"context"
	"time"

	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

const flagsKeyPrefix = "watchlist:flags:"

// FlagSource loads a member's stored privilege flags.
type FlagSource interface {
	WhoAmIFlags(ctx context.Context, userID string) (gateway.Flags, error)
}

// FlagCache caches WhoAmIFlags results in Redis. Cache failures degrade to
// a direct lookup.
type FlagCache struct {
	source  FlagSource
	redis   *postgres.RedisClient
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewFlagCache creates a flag cache. A nil redis client disables caching.
func NewFlagCache(source FlagSource, redis *postgres.RedisClient, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *FlagCache {
	if logger == nil {
		logger = observability.Default()
	}
	return &FlagCache{source: source, redis: redis, ttl: ttl, logger: logger, metrics: metrics}
}

func flagsKey(userID string) string {
	return flagsKeyPrefix + userID
}

// Load returns the flags of userID.
func (c *FlagCache) Load(ctx context.Context, userID string) (gateway.Flags, error) {
	if c.redis != nil {
		var cached gateway.Flags
		hit, err := c.redis.GetJSON(ctx, flagsKey(userID), &cached)
		if err != nil {
			c.logger.WithError(err).Warn("flag cache read failed")
		}
		c.metrics.ObserveCache("flags", hit)
		if hit {
			return cached, nil
		}
	}

	flags, err := c.source.WhoAmIFlags(ctx, userID)
	if err != nil {
		return gateway.Flags{}, err
	}

	if c.redis != nil && c.ttl > 0 {
		if err := c.redis.SetJSON(ctx, flagsKey(userID), flags, c.ttl); err != nil {
			c.logger.WithError(err).Warn("flag cache write failed")
		}
	}
	return flags, nil
}

// Invalidate drops the cached flags of the given members.
func (c *FlagCache) Invalidate(ctx context.Context, userIDs ...string) {
	if c == nil || c.redis == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = flagsKey(id)
	}
	if err := c.redis.Delete(ctx, keys...); err != nil {
		c.logger.WithError(err).Warn("flag cache invalidation failed")
	}
}
