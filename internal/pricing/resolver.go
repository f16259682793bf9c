// Package pricing resolves one settlement price per stock and quarter.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/pkg/logger"
)

// NoPrice is the sentinel returned when nothing is found and RaiseOnMissing is false
const NoPrice = contracts.NoPrice

// WindowDays is the search window after the lower bound, exclusive on both ends
const WindowDays = 10

// Options controls a single resolution
type Options = contracts.PriceOptions

type memoKey struct {
	stockID   string
	quarter   quarter.Quarter
	dayOffset int
}

type memoEntry struct {
	price float64
	found bool
}

// Stats counts how resolutions were served
type Stats struct {
	MemoHits  int
	CacheHits int
	Derived   int
	Missing   int
}

// Resolver resolves settlement prices after quarterly reports.
// ⭐ SSOT: memo → quarterly cache → daily series → sentinel/error
// A Resolver belongs to one backtest run and is not safe for concurrent use.
type Resolver struct {
	daily  contracts.DailyPriceRepository
	cache  contracts.QuarterlyPriceCache // optional
	logger *logger.Logger
	memo   map[memoKey]memoEntry
	stats  Stats
}

// NewResolver creates a resolver with an empty memo. cache may be nil.
func NewResolver(daily contracts.DailyPriceRepository, cache contracts.QuarterlyPriceCache, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		daily:  daily,
		cache:  cache,
		logger: log.Module("pricing"),
		memo:   make(map[memoKey]memoEntry),
	}
}

// PriceAfterQuarterReport returns the first close after the earnings deadline of q (+DayOffset days).
// DayOffset == 0 goes through the quarterly cache and writes derived prices back (first writer wins);
// any other offset reads the daily series only.
func (r *Resolver) PriceAfterQuarterReport(ctx context.Context, stockID string, q quarter.Quarter, opts Options) (float64, error) {
	key := memoKey{stockID: stockID, quarter: q, dayOffset: opts.DayOffset}

	if entry, ok := r.memo[key]; ok {
		r.stats.MemoHits++
		return r.result(entry, stockID, q, opts)
	}

	standard := opts.DayOffset == 0

	if standard && r.cache != nil {
		price, found, err := r.cache.Find(ctx, stockID, q)
		if err != nil {
			return 0, fmt.Errorf("quarter price cache %s/%s: %w", stockID, q, err)
		}
		// a non-positive cached price is not a legitimate price
		if found && price > 0 {
			r.stats.CacheHits++
			entry := memoEntry{price: price, found: true}
			r.memo[key] = entry
			return entry.price, nil
		}
	}

	after, before := WindowFor(q, opts.DayOffset)
	records, err := r.daily.Query(ctx, stockID, after.AddDate(0, 0, 1), before.AddDate(0, 0, -1))
	if err != nil {
		return 0, fmt.Errorf("daily prices %s/%s: %w", stockID, q, err)
	}

	entry := memoEntry{}
	for _, rec := range records {
		if rec.Date.After(after) && rec.Date.Before(before) {
			entry = memoEntry{price: rec.Close, found: true}
			break
		}
	}

	if entry.found {
		r.stats.Derived++
		if standard && r.cache != nil {
			if err := r.cache.InsertIfAbsent(ctx, stockID, q, entry.price); err != nil {
				return 0, fmt.Errorf("store quarter price %s/%s: %w", stockID, q, err)
			}
		}
	} else {
		r.stats.Missing++
		r.logger.WithFields(map[string]interface{}{
			"stock_id":   stockID,
			"quarter":    q.String(),
			"day_offset": opts.DayOffset,
		}).Debug("no price in window")
	}

	r.memo[key] = entry
	return r.result(entry, stockID, q, opts)
}

func (r *Resolver) result(entry memoEntry, stockID string, q quarter.Quarter, opts Options) (float64, error) {
	if entry.found {
		return entry.price, nil
	}
	if opts.RaiseOnMissing {
		return 0, &contracts.MissingPriceError{StockID: stockID, Quarter: q}
	}
	return NoPrice, nil
}

// Stats returns resolution counters of this run
func (r *Resolver) Stats() Stats {
	return r.stats
}

// WindowFor returns the (exclusive) search window for q and a day offset
func WindowFor(q quarter.Quarter, dayOffset int) (after, before time.Time) {
	bound := quarter.EarningsDeadline(q).AddDate(0, 0, dayOffset)
	return bound, bound.AddDate(0, 0, WindowDays)
}
