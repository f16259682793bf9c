package s0_data

import (
	"context"
	"fmt"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/pkg/redis"
)

// RedisQuarterPrices implements contracts.QuarterlyPriceCache on Redis (SETNX = insert-if-absent)
type RedisQuarterPrices struct {
	cache *redis.Cache
}

// NewRedisQuarterPrices creates a Redis backed quarter price cache
func NewRedisQuarterPrices(cache *redis.Cache) *RedisQuarterPrices {
	return &RedisQuarterPrices{cache: cache}
}

// Find returns the cached price of a stock for q
func (r *RedisQuarterPrices) Find(ctx context.Context, stockID string, q quarter.Quarter) (float64, bool, error) {
	var price float64
	found, err := r.cache.Get(ctx, redis.QuarterPriceKey(stockID, q.Year, q.Number), &price)
	if err != nil {
		return 0, false, fmt.Errorf("redis quarter price %s/%s: %w", stockID, q, err)
	}
	return price, found, nil
}

// InsertIfAbsent stores the price unless the key exists
func (r *RedisQuarterPrices) InsertIfAbsent(ctx context.Context, stockID string, q quarter.Quarter, price float64) error {
	if _, err := r.cache.SetIfAbsent(ctx, redis.QuarterPriceKey(stockID, q.Year, q.Number), price, redis.TTLForever); err != nil {
		return fmt.Errorf("redis store quarter price %s/%s: %w", stockID, q, err)
	}
	return nil
}

// LayeredQuarterPrices reads through a fast cache in front of the durable store.
// The durable store decides the first writer; the fast cache is warmed with its value.
type LayeredQuarterPrices struct {
	fast    contracts.QuarterlyPriceCache
	durable contracts.QuarterlyPriceCache
}

// NewLayeredQuarterPrices creates a two level quarter price cache
func NewLayeredQuarterPrices(fast, durable contracts.QuarterlyPriceCache) *LayeredQuarterPrices {
	return &LayeredQuarterPrices{fast: fast, durable: durable}
}

// Find checks the fast cache, then the durable store, warming the fast cache on a durable hit
func (l *LayeredQuarterPrices) Find(ctx context.Context, stockID string, q quarter.Quarter) (float64, bool, error) {
	if price, found, err := l.fast.Find(ctx, stockID, q); err != nil {
		return 0, false, err
	} else if found {
		return price, true, nil
	}

	price, found, err := l.durable.Find(ctx, stockID, q)
	if err != nil || !found {
		return 0, false, err
	}

	if err := l.fast.InsertIfAbsent(ctx, stockID, q, price); err != nil {
		return 0, false, err
	}
	return price, true, nil
}

// InsertIfAbsent writes to the durable store and mirrors the winning value into the fast cache
func (l *LayeredQuarterPrices) InsertIfAbsent(ctx context.Context, stockID string, q quarter.Quarter, price float64) error {
	if err := l.durable.InsertIfAbsent(ctx, stockID, q, price); err != nil {
		return err
	}

	winner, found, err := l.durable.Find(ctx, stockID, q)
	if err != nil {
		return err
	}
	if !found {
		winner = price
	}
	return l.fast.InsertIfAbsent(ctx, stockID, q, winner)
}
