package contracts

import (
	"context"
	"time"

	"github.com/wonny/evquant/internal/quarter"
)

// ⭐ SSOT: repository interfaces are defined here only

// FundamentalsRepository serves quarterly reports
type FundamentalsRepository interface {
	// Find returns (nil, nil) when the report is absent
	Find(ctx context.Context, stockID string, q quarter.Quarter) (*StockFundamentals, error)
	ListStockIDs(ctx context.Context, q quarter.Quarter) ([]string, error)
}

// FundamentalsWriter persists reports; the first stored report of a key wins
type FundamentalsWriter interface {
	InsertIfAbsent(ctx context.Context, f *StockFundamentals) (bool, error)
}

// DailyPriceRepository serves daily candles
type DailyPriceRepository interface {
	// Query returns candles with from <= date <= to, ascending by date
	Query(ctx context.Context, stockID string, from, to time.Time) ([]PriceRecord, error)
}

// DailyPriceWriter persists daily candles
type DailyPriceWriter interface {
	SaveBatch(ctx context.Context, records []PriceRecord) error
	LatestDate(ctx context.Context, stockID string) (time.Time, bool, error)
}

// ChipRepository serves daily branch trading records
type ChipRepository interface {
	// Query returns records with from <= date <= to, ascending by date then branch id
	Query(ctx context.Context, stockID string, from, to time.Time) ([]ChipRecord, error)
	// Threshold returns the big trader threshold configured for a stock
	Threshold(ctx context.Context, stockID string) (lots int64, found bool, err error)
}

// ChipWriter persists daily branch trading records
type ChipWriter interface {
	SaveBatch(ctx context.Context, records []ChipRecord) error
	LatestDate(ctx context.Context, stockID string) (time.Time, bool, error)
	SetThreshold(ctx context.Context, stockID string, lots int64) error
}

// QuarterlyPriceCache stores one settlement price per (stock id, quarter), write-once
type QuarterlyPriceCache interface {
	Find(ctx context.Context, stockID string, q quarter.Quarter) (price float64, found bool, err error)
	InsertIfAbsent(ctx context.Context, stockID string, q quarter.Quarter, price float64) error
}
