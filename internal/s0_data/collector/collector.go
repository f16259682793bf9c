package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/pkg/logger"
)

// FundamentalsFeed fetches quarterly reports (statementdog.Client)
type FundamentalsFeed interface {
	FetchFundamentals(ctx context.Context, stockID string, sinceYear, untilYear int) ([]contracts.StockFundamentals, error)
}

// PriceFeed fetches daily candles dated in (since, until] (cmoney.Client)
type PriceFeed interface {
	FetchDailyPrices(ctx context.Context, stockID string, since, until time.Time) ([]contracts.PriceRecord, error)
}

// ChipFeed fetches daily branch trading of weekdays in (since, until] (cmoney.ChipClient)
type ChipFeed interface {
	FetchChips(ctx context.Context, stockID string, since, until time.Time) ([]contracts.ChipRecord, error)
}

// Collector orchestrates data collection from the external feeds
// ⭐ SSOT: data collection orchestration lives in this package only
type Collector struct {
	fundamentalsFeed FundamentalsFeed
	priceFeed        PriceFeed
	fundamentals     contracts.FundamentalsWriter
	prices           contracts.DailyPriceWriter
	chipFeed         ChipFeed
	chips            contracts.ChipWriter
	logger           *logger.Logger
}

// Config holds collector configuration
type Config struct {
	Workers int // Number of concurrent workers
}

func (c Config) workers(jobs int) int {
	n := c.Workers
	if n <= 0 {
		n = 1
	}
	if jobs > 0 && n > jobs {
		n = jobs
	}
	return n
}

// NewCollector creates a new Collector instance
func NewCollector(
	fundamentalsFeed FundamentalsFeed,
	priceFeed PriceFeed,
	fundamentals contracts.FundamentalsWriter,
	prices contracts.DailyPriceWriter,
	log *logger.Logger,
) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		fundamentalsFeed: fundamentalsFeed,
		priceFeed:        priceFeed,
		fundamentals:     fundamentals,
		prices:           prices,
		logger:           log.Module("collector"),
	}
}

// WithChips enables branch trading collection
func (c *Collector) WithChips(feed ChipFeed, store contracts.ChipWriter) *Collector {
	c.chipFeed = feed
	c.chips = store
	return c
}

// FetchResult represents the result of a fetch operation for one stock
type FetchResult struct {
	StockID  string
	Fetched  int // records returned by the feed
	Inserted int // records newly stored
	Error    error
}

// Summary counts successes and failures
type Summary struct {
	Success  int
	Failed   int
	Fetched  int
	Inserted int
}

// Summarize totals a result set
func Summarize(results []FetchResult) Summary {
	var s Summary
	for _, r := range results {
		if r.Error != nil {
			s.Failed++
		} else {
			s.Success++
		}
		s.Fetched += r.Fetched
		s.Inserted += r.Inserted
	}
	return s
}

type fetchFunc func(ctx context.Context, workerID int, stockID string) FetchResult

// runPool fans stockIDs out to cfg.Workers workers and gathers one result per stock.
// Stocks not yet started when ctx is cancelled report ctx.Err().
func (c *Collector) runPool(ctx context.Context, name string, stockIDs []string, cfg Config, fetch fetchFunc) []FetchResult {
	workers := cfg.workers(len(stockIDs))

	c.logger.WithFields(map[string]interface{}{
		"job":         name,
		"stock_count": len(stockIDs),
		"workers":     workers,
	}).Info("Starting collection")

	resultCh := make(chan FetchResult, len(stockIDs))
	stockCh := make(chan string, len(stockIDs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for id := range stockCh {
				if err := ctx.Err(); err != nil {
					resultCh <- FetchResult{StockID: id, Error: err}
					continue
				}
				resultCh <- fetch(ctx, workerID, id)
			}
		}(i)
	}

	for _, id := range stockIDs {
		stockCh <- id
	}
	close(stockCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]FetchResult, 0, len(stockIDs))
	for result := range resultCh {
		results = append(results, result)
	}

	summary := Summarize(results)
	c.logger.WithFields(map[string]interface{}{
		"job":      name,
		"success":  summary.Success,
		"failed":   summary.Failed,
		"fetched":  summary.Fetched,
		"inserted": summary.Inserted,
	}).Info("Collection completed")

	return results
}

// FetchAllFundamentals fetches reports of [sinceYear, untilYear] for every stock.
// Reports already stored are left untouched.
func (c *Collector) FetchAllFundamentals(ctx context.Context, stockIDs []string, sinceYear, untilYear int, cfg Config) ([]FetchResult, error) {
	if sinceYear > untilYear {
		return nil, fmt.Errorf("since year %d is after until year %d", sinceYear, untilYear)
	}

	return c.runPool(ctx, "fundamentals", stockIDs, cfg, func(ctx context.Context, workerID int, id string) FetchResult {
		reports, err := c.fundamentalsFeed.FetchFundamentals(ctx, id, sinceYear, untilYear)
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":   workerID,
				"stock_id": id,
			}).Error("Failed to fetch fundamentals")
			return FetchResult{StockID: id, Error: err}
		}

		result := FetchResult{StockID: id, Fetched: len(reports)}
		for i := range reports {
			inserted, err := c.fundamentals.InsertIfAbsent(ctx, &reports[i])
			if err != nil {
				c.logger.WithError(err).WithFields(map[string]interface{}{
					"worker":   workerID,
					"stock_id": id,
					"quarter":  reports[i].Quarter.String(),
				}).Error("Failed to save fundamentals")
				result.Error = fmt.Errorf("save %s %s: %w", id, reports[i].Quarter, err)
				return result
			}
			if inserted {
				result.Inserted++
			}
		}
		return result
	}), nil
}

// FetchAllPrices fetches candles up to until for every stock, resuming after the latest stored date.
// Stocks with nothing stored start after defaultSince.
func (c *Collector) FetchAllPrices(ctx context.Context, stockIDs []string, defaultSince, until time.Time, cfg Config) ([]FetchResult, error) {
	if !until.IsZero() && until.Before(defaultSince) {
		return nil, fmt.Errorf("until %s is before since %s", until.Format("2006-01-02"), defaultSince.Format("2006-01-02"))
	}

	return c.runPool(ctx, "prices", stockIDs, cfg, func(ctx context.Context, workerID int, id string) FetchResult {
		since := defaultSince
		latest, found, err := c.prices.LatestDate(ctx, id)
		if err != nil {
			return FetchResult{StockID: id, Error: fmt.Errorf("latest date %s: %w", id, err)}
		}
		if found && latest.After(since) {
			since = latest
		}

		records, err := c.priceFeed.FetchDailyPrices(ctx, id, since, until)
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":   workerID,
				"stock_id": id,
			}).Error("Failed to fetch prices")
			return FetchResult{StockID: id, Error: err}
		}

		if err := c.prices.SaveBatch(ctx, records); err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":   workerID,
				"stock_id": id,
			}).Error("Failed to save prices")
			return FetchResult{StockID: id, Fetched: len(records), Error: err}
		}

		c.logger.WithFields(map[string]interface{}{
			"worker":   workerID,
			"stock_id": id,
			"since":    since.Format("2006-01-02"),
			"count":    len(records),
		}).Debug("Fetched prices")

		return FetchResult{StockID: id, Fetched: len(records), Inserted: len(records)}
	}), nil
}

// FetchAllChips fetches branch trading up to until for every stock, resuming after the latest stored date.
// Stocks with nothing stored start after defaultSince.
func (c *Collector) FetchAllChips(ctx context.Context, stockIDs []string, defaultSince, until time.Time, cfg Config) ([]FetchResult, error) {
	if c.chipFeed == nil || c.chips == nil {
		return nil, errors.New("chip collection is not configured")
	}
	if !until.IsZero() && until.Before(defaultSince) {
		return nil, fmt.Errorf("until %s is before since %s", until.Format("2006-01-02"), defaultSince.Format("2006-01-02"))
	}

	return c.runPool(ctx, "chips", stockIDs, cfg, func(ctx context.Context, workerID int, id string) FetchResult {
		since := defaultSince
		latest, found, err := c.chips.LatestDate(ctx, id)
		if err != nil {
			return FetchResult{StockID: id, Error: fmt.Errorf("latest chip date %s: %w", id, err)}
		}
		if found && latest.After(since) {
			since = latest
		}

		records, err := c.chipFeed.FetchChips(ctx, id, since, until)
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":   workerID,
				"stock_id": id,
			}).Error("Failed to fetch chips")
			return FetchResult{StockID: id, Error: err}
		}

		if err := c.chips.SaveBatch(ctx, records); err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":   workerID,
				"stock_id": id,
			}).Error("Failed to save chips")
			return FetchResult{StockID: id, Fetched: len(records), Error: err}
		}

		return FetchResult{StockID: id, Fetched: len(records), Inserted: len(records)}
	}), nil
}

// Plan bounds a FetchAll run
type Plan struct {
	SinceYear  int       // first fundamentals year
	UntilYear  int       // last fundamentals year
	PriceSince time.Time // candles start after this date when none are stored
	ChipSince  time.Time // branch records start after this date when none are stored
	Until      time.Time // zero = up to the feed's latest day
}

// Results holds the per-stock results of each collection in a FetchAll run
type Results struct {
	Fundamentals []FetchResult
	Prices       []FetchResult
	Chips        []FetchResult // nil when chip collection is not configured
}

// FetchAll runs every configured collection concurrently.
// The error joins each collection's failure; results of the others are still returned.
func (c *Collector) FetchAll(ctx context.Context, stockIDs []string, plan Plan, cfg Config) (Results, error) {
	var (
		results Results
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
	)

	run := func(name string, out *[]FetchResult, fetch func() ([]FetchResult, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fetch()
			*out = res

			if err == nil {
				if s := Summarize(res); s.Failed > 0 {
					err = fmt.Errorf("%d of %d stocks failed", s.Failed, len(res))
				}
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("fetch %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	run("fundamentals", &results.Fundamentals, func() ([]FetchResult, error) {
		return c.FetchAllFundamentals(ctx, stockIDs, plan.SinceYear, plan.UntilYear, cfg)
	})
	run("prices", &results.Prices, func() ([]FetchResult, error) {
		return c.FetchAllPrices(ctx, stockIDs, plan.PriceSince, plan.Until, cfg)
	})
	if c.chipFeed != nil && c.chips != nil {
		run("chips", &results.Chips, func() ([]FetchResult, error) {
			return c.FetchAllChips(ctx, stockIDs, plan.ChipSince, plan.Until, cfg)
		})
	}

	wg.Wait()
	return results, errors.Join(errs...)
}
