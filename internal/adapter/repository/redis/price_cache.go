package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/usecase"
)

// CachedPriceOracle caches reference prices from another oracle in Redis.
// Cache failures fall through to the wrapped oracle.
type CachedPriceOracle struct {
	client *redis.Client
	next   usecase.PriceOracle
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// NewCachedPriceOracle wraps next with a Redis cache.
func NewCachedPriceOracle(client *redis.Client, next usecase.PriceOracle, ttl time.Duration, logger zerolog.Logger) *CachedPriceOracle {
	return &CachedPriceOracle{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: "price:",
		logger: logger.With().Str("component", "price_cache").Logger(),
	}
}

// GetPrice returns the cached price for asset or loads it from the wrapped oracle.
func (c *CachedPriceOracle) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	key := c.key(asset)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		price, perr := decimal.NewFromString(cached)
		if perr == nil {
			return price, nil
		}
		c.logger.Warn().Err(perr).Str("key", key).Msg("discarding malformed cached price")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("price cache read failed")
	}

	price, err := c.next.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.client.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("price cache write failed")
	}

	return price, nil
}

// Invalidate drops the cached price for asset.
func (c *CachedPriceOracle) Invalidate(ctx context.Context, asset string) error {
	return c.client.Del(ctx, c.key(asset)).Err()
}

func (c *CachedPriceOracle) key(asset string) string {
	return c.prefix + strings.ToUpper(strings.TrimSpace(asset))
}
