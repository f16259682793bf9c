package s0_data

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
)

type stockQuarter struct {
	stockID string
	quarter quarter.Quarter
}

// MemoryFundamentals is an in-process fundamentals store for bulk prefetch and tests
type MemoryFundamentals struct {
	mu      sync.RWMutex
	reports map[stockQuarter]contracts.StockFundamentals
}

// NewMemoryFundamentals creates a store seeded with reports (first report of a key wins)
func NewMemoryFundamentals(reports ...contracts.StockFundamentals) *MemoryFundamentals {
	m := &MemoryFundamentals{reports: make(map[stockQuarter]contracts.StockFundamentals)}
	for i := range reports {
		_, _ = m.InsertIfAbsent(context.Background(), &reports[i])
	}
	return m
}

// Find returns a copy of the report or (nil, nil)
func (m *MemoryFundamentals) Find(_ context.Context, stockID string, q quarter.Quarter) (*contracts.StockFundamentals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.reports[stockQuarter{stockID, q}]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// ListStockIDs returns ids with a report for q, ascending
func (m *MemoryFundamentals) ListStockIDs(_ context.Context, q quarter.Quarter) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for k := range m.reports {
		if k.quarter == q {
			ids = append(ids, k.stockID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// InsertIfAbsent stores f unless the key exists
func (m *MemoryFundamentals) InsertIfAbsent(_ context.Context, f *contracts.StockFundamentals) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stockQuarter{f.StockID, f.Quarter}
	if _, exists := m.reports[key]; exists {
		return false, nil
	}
	m.reports[key] = *f
	return true, nil
}

// Len returns the number of stored reports
func (m *MemoryFundamentals) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}

// MemoryPrices is an in-process daily candle store
type MemoryPrices struct {
	mu     sync.RWMutex
	series map[string][]contracts.PriceRecord // ascending by date
}

// NewMemoryPrices creates a store seeded with records
func NewMemoryPrices(records ...contracts.PriceRecord) *MemoryPrices {
	m := &MemoryPrices{series: make(map[string][]contracts.PriceRecord)}
	_ = m.SaveBatch(context.Background(), records)
	return m
}

// Query returns candles with from <= date <= to, ascending
func (m *MemoryPrices) Query(_ context.Context, stockID string, from, to time.Time) ([]contracts.PriceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to = contracts.Day(from), contracts.Day(to)
	series := m.series[stockID]
	start := sort.Search(len(series), func(i int) bool { return !series[i].Date.Before(from) })

	var out []contracts.PriceRecord
	for _, rec := range series[start:] {
		if rec.Date.After(to) {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveBatch upserts records by (stock id, date)
func (m *MemoryPrices) SaveBatch(_ context.Context, records []contracts.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[string]struct{})
	for _, rec := range records {
		rec.Date = contracts.Day(rec.Date)
		series := m.series[rec.StockID]

		replaced := false
		for i := range series {
			if series[i].Date.Equal(rec.Date) {
				series[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			m.series[rec.StockID] = append(series, rec)
			touched[rec.StockID] = struct{}{}
		}
	}

	for id := range touched {
		series := m.series[id]
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
	return nil
}

// LatestDate returns the most recent candle date of a stock
func (m *MemoryPrices) LatestDate(_ context.Context, stockID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.series[stockID]
	if len(series) == 0 {
		return time.Time{}, false, nil
	}
	return series[len(series)-1].Date, true, nil
}

// MemoryQuarterPrices is an in-process quarterly price cache
type MemoryQuarterPrices struct {
	mu     sync.RWMutex
	prices map[stockQuarter]float64
}

// NewMemoryQuarterPrices creates an empty cache
func NewMemoryQuarterPrices() *MemoryQuarterPrices {
	return &MemoryQuarterPrices{prices: make(map[stockQuarter]float64)}
}

// Find returns the cached price
func (m *MemoryQuarterPrices) Find(_ context.Context, stockID string, q quarter.Quarter) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	price, ok := m.prices[stockQuarter{stockID, q}]
	return price, ok, nil
}

// InsertIfAbsent stores the price unless the key exists
func (m *MemoryQuarterPrices) InsertIfAbsent(_ context.Context, stockID string, q quarter.Quarter, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stockQuarter{stockID, q}
	if _, exists := m.prices[key]; !exists {
		m.prices[key] = price
	}
	return nil
}

type chipKey struct {
	date     time.Time
	branchID string
}

// MemoryChips is an in-process branch trading store
type MemoryChips struct {
	mu         sync.RWMutex
	records    map[string]map[chipKey]contracts.ChipRecord
	thresholds map[string]int64
}

// NewMemoryChips creates a store seeded with records
func NewMemoryChips(records ...contracts.ChipRecord) *MemoryChips {
	m := &MemoryChips{
		records:    make(map[string]map[chipKey]contracts.ChipRecord),
		thresholds: make(map[string]int64),
	}
	_ = m.SaveBatch(context.Background(), records)
	return m
}

// Query returns records with from <= date <= to, ascending by date then branch id
func (m *MemoryChips) Query(_ context.Context, stockID string, from, to time.Time) ([]contracts.ChipRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to = contracts.Day(from), contracts.Day(to)
	var out []contracts.ChipRecord
	for _, rec := range m.records[stockID] {
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].BranchID < out[j].BranchID
	})
	return out, nil
}

// SaveBatch stores records; a (stock, date, branch) already stored is kept
func (m *MemoryChips) SaveBatch(_ context.Context, records []contracts.ChipRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		rec.Date = contracts.Day(rec.Date)
		series, ok := m.records[rec.StockID]
		if !ok {
			series = make(map[chipKey]contracts.ChipRecord)
			m.records[rec.StockID] = series
		}
		key := chipKey{rec.Date, rec.BranchID}
		if _, exists := series[key]; !exists {
			series[key] = rec
		}
	}
	return nil
}

// LatestDate returns the most recent record date of a stock
func (m *MemoryChips) LatestDate(_ context.Context, stockID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest time.Time
	for key := range m.records[stockID] {
		if key.date.After(latest) {
			latest = key.date
		}
	}
	return latest, !latest.IsZero(), nil
}

// Threshold returns the stored big trader threshold of a stock
func (m *MemoryChips) Threshold(_ context.Context, stockID string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lots, ok := m.thresholds[stockID]
	return lots, ok, nil
}

// SetThreshold stores the big trader threshold of a stock
func (m *MemoryChips) SetThreshold(_ context.Context, stockID string, lots int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.thresholds[stockID] = lots
	return nil
}

var (
	_ contracts.ChipRepository         = (*MemoryChips)(nil)
	_ contracts.ChipWriter             = (*MemoryChips)(nil)
	_ contracts.FundamentalsRepository = (*MemoryFundamentals)(nil)
	_ contracts.FundamentalsWriter     = (*MemoryFundamentals)(nil)
	_ contracts.DailyPriceRepository   = (*MemoryPrices)(nil)
	_ contracts.DailyPriceWriter       = (*MemoryPrices)(nil)
	_ contracts.QuarterlyPriceCache    = (*MemoryQuarterPrices)(nil)
)
