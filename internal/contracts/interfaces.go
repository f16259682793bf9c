package contracts

import (
	"context"

	"github.com/wonny/evquant/internal/quarter"
)

// NoPrice is the sentinel returned when a price cannot be resolved and the caller asked not to fail.
// It is distinct from any legitimate (positive) price.
const NoPrice = -1.0

// PriceOptions controls a single price resolution
type PriceOptions struct {
	RaiseOnMissing bool
	DayOffset      int // 0 = standard path through the quarterly cache
}

// PriceSource resolves settlement prices
// ⭐ SSOT: pricing → portfolio/selection
type PriceSource interface {
	PriceAfterQuarterReport(ctx context.Context, stockID string, q quarter.Quarter, opts PriceOptions) (float64, error)
}

// Ranker produces the top-N list of a quarter
// ⭐ SSOT: selection → backtest
type Ranker interface {
	Rank(ctx context.Context, q quarter.Quarter, universe []string) (*QuarterRanking, error)
}
