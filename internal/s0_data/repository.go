package s0_data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/pkg/config"
	"github.com/wonny/evquant/pkg/redis"
)

// Repository bundles the Postgres stores of S0
// ⭐ SSOT: repositories are wired from here
type Repository struct {
	db            *pgxpool.Pool
	fundamentals  *FundamentalsRepository
	prices        *PriceRepository
	quarterPrices *QuarterPriceRepository
	chips         *ChipRepository
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db:            db,
		fundamentals:  NewFundamentalsRepository(db),
		prices:        NewPriceRepository(db),
		quarterPrices: NewQuarterPriceRepository(db),
		chips:         NewChipRepository(db),
	}
}

// Pool returns the underlying database pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

// Fundamentals returns the quarterly report store
func (r *Repository) Fundamentals() *FundamentalsRepository {
	return r.fundamentals
}

// Prices returns the daily candle store
func (r *Repository) Prices() *PriceRepository {
	return r.prices
}

// Chips returns the branch trading store
func (r *Repository) Chips() *ChipRepository {
	return r.chips
}

// QuarterPrices returns the durable quarter price cache
func (r *Repository) QuarterPrices() *QuarterPriceRepository {
	return r.quarterPrices
}

// QuarterPriceCache selects the quarter price cache backend named by cfg.PriceCache
func (r *Repository) QuarterPriceCache(cfg *config.Config, client *redis.Client) (contracts.QuarterlyPriceCache, error) {
	switch cfg.PriceCache {
	case config.PriceCachePostgres, "":
		return r.quarterPrices, nil
	case config.PriceCacheRedis:
		if client == nil || !client.Enabled() {
			return nil, fmt.Errorf("price cache %q requires redis", cfg.PriceCache)
		}
		return NewRedisQuarterPrices(redis.NewCache(client, "evquant")), nil
	case config.PriceCacheLayered:
		if client == nil || !client.Enabled() {
			return nil, fmt.Errorf("price cache %q requires redis", cfg.PriceCache)
		}
		return NewLayeredQuarterPrices(NewRedisQuarterPrices(redis.NewCache(client, "evquant")), r.quarterPrices), nil
	default:
		return nil, fmt.Errorf("unknown price cache %q", cfg.PriceCache)
	}
}

// Status counts rows of each store
type Status struct {
	Fundamentals  int64 `json:"fundamentals"`
	Stocks        int64 `json:"stocks"`
	DailyPrices   int64 `json:"daily_prices"`
	QuarterPrices int64 `json:"quarter_prices"`
	Chips         int64 `json:"chips"`
}

// GetStatus returns row counts of the stores
func (r *Repository) GetStatus(ctx context.Context) (*Status, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM data.stock_fundamentals),
			(SELECT COUNT(DISTINCT stock_id) FROM data.stock_fundamentals),
			(SELECT COUNT(*) FROM data.daily_prices),
			(SELECT COUNT(*) FROM data.quarter_prices),
			(SELECT COUNT(*) FROM data.chips)
	`

	var s Status
	if err := r.db.QueryRow(ctx, query).Scan(&s.Fundamentals, &s.Stocks, &s.DailyPrices, &s.QuarterPrices, &s.Chips); err != nil {
		return nil, fmt.Errorf("query data status: %w", err)
	}
	return &s, nil
}

var (
	_ contracts.FundamentalsRepository = (*FundamentalsRepository)(nil)
	_ contracts.FundamentalsWriter     = (*FundamentalsRepository)(nil)
	_ contracts.DailyPriceRepository   = (*PriceRepository)(nil)
	_ contracts.DailyPriceWriter       = (*PriceRepository)(nil)
	_ contracts.QuarterlyPriceCache    = (*QuarterPriceRepository)(nil)
	_ contracts.ChipRepository         = (*ChipRepository)(nil)
	_ contracts.ChipWriter             = (*ChipRepository)(nil)
	_ contracts.QuarterlyPriceCache    = (*RedisQuarterPrices)(nil)
	_ contracts.QuarterlyPriceCache    = (*LayeredQuarterPrices)(nil)
)
