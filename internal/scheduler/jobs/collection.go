package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/evquant/internal/s0_data/collector"
	"github.com/wonny/evquant/pkg/logger"
)

// UniverseFunc returns the stock ids a job works on
type UniverseFunc func(ctx context.Context) ([]string, error)

// StaticUniverse returns a UniverseFunc that always yields ids
func StaticUniverse(ids ...string) UniverseFunc {
	return func(context.Context) ([]string, error) {
		return ids, nil
	}
}

// FundamentalsCollector is the part of collector.Collector the fundamentals job needs
type FundamentalsCollector interface {
	FetchAllFundamentals(ctx context.Context, stockIDs []string, sinceYear, untilYear int, cfg collector.Config) ([]collector.FetchResult, error)
}

// PriceCollector is the part of collector.Collector the price job needs
type PriceCollector interface {
	FetchAllPrices(ctx context.Context, stockIDs []string, defaultSince, until time.Time, cfg collector.Config) ([]collector.FetchResult, error)
}

// ChipCollector is the part of collector.Collector the chip job needs
type ChipCollector interface {
	FetchAllChips(ctx context.Context, stockIDs []string, defaultSince, until time.Time, cfg collector.Config) ([]collector.FetchResult, error)
}

// FundamentalsJob refreshes quarterly reports of the current and previous year daily
// ⭐ SSOT: the fundamentals refresh schedule lives in this job only
type FundamentalsJob struct {
	collector FundamentalsCollector
	universe  UniverseFunc
	cfg       collector.Config
	logger    *logger.Logger
	now       func() time.Time
}

// NewFundamentalsJob creates a new fundamentals job
func NewFundamentalsJob(col FundamentalsCollector, universe UniverseFunc, cfg collector.Config, log *logger.Logger) *FundamentalsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &FundamentalsJob{
		collector: col,
		universe:  universe,
		cfg:       cfg,
		logger:    log.Module("jobs"),
		now:       time.Now,
	}
}

// Name returns the job name
func (j *FundamentalsJob) Name() string {
	return "fundamentals_collection"
}

// Schedule returns the cron schedule (every day at 6 PM)
func (j *FundamentalsJob) Schedule() string {
	return "0 0 18 * * *"
}

// Run executes the fundamentals collection
func (j *FundamentalsJob) Run(ctx context.Context) error {
	ids, err := j.universe(ctx)
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}

	// Q4 reports of last year arrive in March
	until := j.now().Year()
	since := until - 1

	results, err := j.collector.FetchAllFundamentals(ctx, ids, since, until, j.cfg)
	if err != nil {
		return fmt.Errorf("fetch fundamentals: %w", err)
	}

	return failOnErrors("fundamentals", results, j.logger)
}

// PriceCollectionJob appends new daily candles after each weekday close
type PriceCollectionJob struct {
	collector PriceCollector
	universe  UniverseFunc
	since     time.Time
	cfg       collector.Config
	logger    *logger.Logger
}

// NewPriceCollectionJob creates a new price collection job. since is the start for stocks with no stored candles.
func NewPriceCollectionJob(col PriceCollector, universe UniverseFunc, since time.Time, cfg collector.Config, log *logger.Logger) *PriceCollectionJob {
	if log == nil {
		log = logger.Nop()
	}
	return &PriceCollectionJob{
		collector: col,
		universe:  universe,
		since:     since,
		cfg:       cfg,
		logger:    log.Module("jobs"),
	}
}

// Name returns the job name
func (j *PriceCollectionJob) Name() string {
	return "price_collection"
}

// Schedule returns the cron schedule (weekdays at 3:30 PM, after the close)
func (j *PriceCollectionJob) Schedule() string {
	return "0 30 15 * * MON-FRI"
}

// Run executes the price collection
func (j *PriceCollectionJob) Run(ctx context.Context) error {
	ids, err := j.universe(ctx)
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}

	results, err := j.collector.FetchAllPrices(ctx, ids, j.since, time.Time{}, j.cfg)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	return failOnErrors("prices", results, j.logger)
}

// ChipCollectionJob appends settled branch trading every weekday morning
type ChipCollectionJob struct {
	collector ChipCollector
	universe  UniverseFunc
	since     time.Time
	cfg       collector.Config
	logger    *logger.Logger
}

// NewChipCollectionJob creates a new chip collection job. since is the start for stocks with no stored records.
func NewChipCollectionJob(col ChipCollector, universe UniverseFunc, since time.Time, cfg collector.Config, log *logger.Logger) *ChipCollectionJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ChipCollectionJob{
		collector: col,
		universe:  universe,
		since:     since,
		cfg:       cfg,
		logger:    log.Module("jobs"),
	}
}

// Name returns the job name
func (j *ChipCollectionJob) Name() string {
	return "chip_collection"
}

// Schedule returns the cron schedule (Tuesday to Saturday at 7 AM, for the previous trading day)
func (j *ChipCollectionJob) Schedule() string {
	return "0 0 7 * * TUE-SAT"
}

// Run executes the chip collection up to yesterday
func (j *ChipCollectionJob) Run(ctx context.Context) error {
	ids, err := j.universe(ctx)
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}

	results, err := j.collector.FetchAllChips(ctx, ids, j.since, time.Time{}, j.cfg)
	if err != nil {
		return fmt.Errorf("fetch chips: %w", err)
	}

	return failOnErrors("chips", results, j.logger)
}

// failOnErrors turns per-stock failures into a job error so the scheduler retries
func failOnErrors(name string, results []collector.FetchResult, log *logger.Logger) error {
	summary := collector.Summarize(results)

	log.WithFields(map[string]interface{}{
		"job":      name,
		"success":  summary.Success,
		"failed":   summary.Failed,
		"inserted": summary.Inserted,
	}).Info("Scheduled collection finished")

	if summary.Failed > 0 {
		return fmt.Errorf("%s: %d of %d stocks failed", name, summary.Failed, len(results))
	}
	return nil
}
