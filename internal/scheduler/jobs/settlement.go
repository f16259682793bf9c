package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/pricing"
	"github.com/wonny/evquant/pkg/logger"
)

// QuarterPriceJob writes the settlement price of the latest settled quarter into the
// quarter price cache for every stock that reported in it
type QuarterPriceJob struct {
	fundamentals contracts.FundamentalsRepository
	daily        contracts.DailyPriceRepository
	cache        contracts.QuarterlyPriceCache
	logger       *logger.Logger
	now          func() time.Time
}

// NewQuarterPriceJob creates a new quarter price job
func NewQuarterPriceJob(
	fundamentals contracts.FundamentalsRepository,
	daily contracts.DailyPriceRepository,
	cache contracts.QuarterlyPriceCache,
	log *logger.Logger,
) *QuarterPriceJob {
	if log == nil {
		log = logger.Nop()
	}
	return &QuarterPriceJob{
		fundamentals: fundamentals,
		daily:        daily,
		cache:        cache,
		logger:       log.Module("jobs"),
		now:          time.Now,
	}
}

// Name returns the job name
func (j *QuarterPriceJob) Name() string {
	return "quarter_price_settlement"
}

// Schedule returns the cron schedule (every day at 7 PM, after price collection)
func (j *QuarterPriceJob) Schedule() string {
	return "0 0 19 * * *"
}

// Run resolves and caches the settlement prices
func (j *QuarterPriceJob) Run(ctx context.Context) error {
	q := pricing.LatestSettled(j.now())

	ids, err := j.fundamentals.ListStockIDs(ctx, q)
	if err != nil {
		return fmt.Errorf("list stocks of %s: %w", q, err)
	}

	resolver := pricing.NewResolver(j.daily, j.cache, j.logger)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := resolver.PriceAfterQuarterReport(ctx, id, q, pricing.Options{}); err != nil {
			return fmt.Errorf("settle %s %s: %w", id, q, err)
		}
	}

	stats := resolver.Stats()
	j.logger.WithFields(map[string]interface{}{
		"quarter": q.String(),
		"stocks":  len(ids),
		"cached":  stats.CacheHits,
		"derived": stats.Derived,
		"missing": stats.Missing,
	}).Info("Quarter prices settled")

	return nil
}
