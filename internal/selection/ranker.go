package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/pricing"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/s2_signals"
	"github.com/wonny/evquant/pkg/logger"
)

// MissingPolicy decides what a missing input does to a run
type MissingPolicy string

const (
	MissingSkip  MissingPolicy = "skip"  // log and exclude the stock
	MissingAbort MissingPolicy = "abort" // propagate the error
)

// Valid reports whether p is a known policy
func (p MissingPolicy) Valid() bool {
	return p == MissingSkip || p == MissingAbort
}

// DefaultTopN is the list size of the standard quarterly screen
const DefaultTopN = 30

// Ranker selects the top-N stocks of a quarter by EV/EBITDA ratio
// ⭐ SSOT: ranking logic lives here only
type Ranker struct {
	fundamentals contracts.FundamentalsRepository
	prices       contracts.PriceSource
	values       *s2_signals.ValueCalculator
	topN         int
	onMissing    MissingPolicy
	logger       *logger.Logger
}

// NewRanker creates a new ranker
func NewRanker(fundamentals contracts.FundamentalsRepository, prices contracts.PriceSource, topN int, onMissing MissingPolicy, log *logger.Logger) *Ranker {
	if log == nil {
		log = logger.Nop()
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	if !onMissing.Valid() {
		onMissing = MissingSkip
	}
	return &Ranker{
		fundamentals: fundamentals,
		prices:       prices,
		values:       s2_signals.NewValueCalculator(log),
		topN:         topN,
		onMissing:    onMissing,
		logger:       log.Module("selection"),
	}
}

// Rank evaluates the universe at q and returns the top N by ratio desc, ties by stock id asc.
// An empty universe is read from the fundamentals repository.
func (r *Ranker) Rank(ctx context.Context, q quarter.Quarter, universe []string) (*contracts.QuarterRanking, error) {
	ids, err := r.universe(ctx, q, universe)
	if err != nil {
		return nil, err
	}

	ranking := &contracts.QuarterRanking{Quarter: q}
	candidates := make([]contracts.RankedStock, 0, len(ids))

	for _, id := range ids {
		v, err := r.evaluate(ctx, id, q)
		if err != nil {
			var missing *contracts.MissingFundamentalsError
			if errors.As(err, &missing) && r.onMissing == MissingSkip {
				r.logger.WithFields(map[string]interface{}{
					"stock_id": id,
					"quarter":  q.String(),
				}).Warn("Fundamentals not found, skipping")
				ranking.Excluded++
				continue
			}
			return nil, err
		}

		if !v.Eligible {
			ranking.Excluded++
			continue
		}

		candidates = append(candidates, contracts.RankedStock{
			StockID: id,
			Ratio:   v.Ratio,
			EV:      v.EV,
			EBITDA:  v.EBITDA,
			Price:   v.Price,
		})
	}

	SortByRatio(candidates)

	if len(candidates) > r.topN {
		candidates = candidates[:r.topN]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	ranking.Stocks = candidates

	fields := map[string]interface{}{
		"quarter":  q.String(),
		"universe": len(ids),
		"selected": len(candidates),
		"excluded": ranking.Excluded,
	}
	if len(candidates) > 0 {
		fields["top_stock"] = candidates[0].StockID
		fields["top_ratio"] = candidates[0].Ratio
	}
	r.logger.WithFields(fields).Info("Ranking completed")

	return ranking, nil
}

func (r *Ranker) evaluate(ctx context.Context, id string, q quarter.Quarter) (s2_signals.Valuation, error) {
	f, err := r.fundamentals.Find(ctx, id, q)
	if err != nil {
		return s2_signals.Valuation{}, fmt.Errorf("load fundamentals %s/%s: %w", id, q, err)
	}
	if f == nil {
		return s2_signals.Valuation{}, &contracts.MissingFundamentalsError{StockID: id, Quarter: q}
	}

	price, err := r.prices.PriceAfterQuarterReport(ctx, id, q, pricing.Options{RaiseOnMissing: false})
	if err != nil {
		return s2_signals.Valuation{}, fmt.Errorf("price %s/%s: %w", id, q, err)
	}
	if price == pricing.NoPrice || price <= 0 {
		r.logger.WithFields(map[string]interface{}{
			"stock_id": id,
			"quarter":  q.String(),
		}).Debug("Price unresolved, excluding")
		return s2_signals.Valuation{StockID: id, Price: price}, nil
	}

	return r.values.Calculate(*f, price), nil
}

func (r *Ranker) universe(ctx context.Context, q quarter.Quarter, universe []string) ([]string, error) {
	if len(universe) == 0 {
		ids, err := r.fundamentals.ListStockIDs(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("list stocks for %s: %w", q, err)
		}
		universe = ids
	}

	seen := make(map[string]struct{}, len(universe))
	out := make([]string, 0, len(universe))
	for _, id := range universe {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// SortByRatio orders by ratio descending, then stock id ascending
func SortByRatio(stocks []contracts.RankedStock) {
	sort.SliceStable(stocks, func(i, j int) bool {
		if stocks[i].Ratio != stocks[j].Ratio {
			return stocks[i].Ratio > stocks[j].Ratio
		}
		return stocks[i].StockID < stocks[j].StockID
	})
}
