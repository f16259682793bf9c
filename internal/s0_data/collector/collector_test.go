package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/s0_data"
	"github.com/wonny/evquant/pkg/logger"
)

type fakeFundamentalsFeed struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *fakeFundamentalsFeed) FetchFundamentals(_ context.Context, stockID string, sinceYear, untilYear int) ([]contracts.StockFundamentals, error) {
	f.calls.Add(1)
	if f.fail[stockID] {
		return nil, errors.New("feed down")
	}
	var out []contracts.StockFundamentals
	for y := sinceYear; y <= untilYear; y++ {
		for n := 1; n <= 4; n++ {
			out = append(out, contracts.StockFundamentals{
				StockID:         stockID,
				Quarter:         quarter.Quarter{Year: y, Number: n},
				OperatingIncome: float64(y*10 + n),
			})
		}
	}
	return out, nil
}

type fakePriceFeed struct {
	mu    sync.Mutex
	since map[string]time.Time
	days  []time.Time
}

func (f *fakePriceFeed) FetchDailyPrices(_ context.Context, stockID string, since, until time.Time) ([]contracts.PriceRecord, error) {
	f.mu.Lock()
	f.since[stockID] = since
	f.mu.Unlock()
	var out []contracts.PriceRecord
	for _, d := range f.days {
		if d.After(since) && (until.IsZero() || !d.After(until)) {
			out = append(out, contracts.PriceRecord{StockID: stockID, Date: d, Close: 10})
		}
	}
	return out, nil
}

func day(m time.Month, d int) time.Time {
	return time.Date(2020, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFetchAllFundamentals_InsertIfAbsent(t *testing.T) {
	existing := contracts.StockFundamentals{StockID: "A", Quarter: quarter.MustParse("20201"), OperatingIncome: -1}
	store := s0_data.NewMemoryFundamentals(existing)
	feed := &fakeFundamentalsFeed{fail: map[string]bool{"BAD": true}}

	c := NewCollector(feed, nil, store, nil, logger.Nop())
	results, err := c.FetchAllFundamentals(context.Background(), []string{"A", "B", "BAD"}, 2020, 2020, Config{Workers: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)

	summary := Summarize(results)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 8, summary.Fetched)
	assert.Equal(t, 7, summary.Inserted)
	assert.Equal(t, int32(3), feed.calls.Load())

	// first stored report wins
	got, err := store.Find(context.Background(), "A", quarter.MustParse("20201"))
	require.NoError(t, err)
	assert.Equal(t, -1.0, got.OperatingIncome)
	assert.Equal(t, 8, store.Len())
}

func TestFetchAllFundamentals_InvalidRange(t *testing.T) {
	c := NewCollector(&fakeFundamentalsFeed{}, nil, s0_data.NewMemoryFundamentals(), nil, nil)
	_, err := c.FetchAllFundamentals(context.Background(), []string{"A"}, 2021, 2020, Config{})
	assert.Error(t, err)
}

func TestFetchAllPrices_ResumesFromLatest(t *testing.T) {
	store := s0_data.NewMemoryPrices(contracts.PriceRecord{StockID: "A", Date: day(1, 3), Close: 9})
	feed := &fakePriceFeed{
		since: map[string]time.Time{},
		days:  []time.Time{day(1, 2), day(1, 3), day(1, 6), day(1, 7)},
	}

	c := NewCollector(nil, feed, nil, store, logger.Nop())
	results, err := c.FetchAllPrices(context.Background(), []string{"A", "B"}, day(1, 1), day(1, 6), Config{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, day(1, 3), feed.since["A"])
	assert.Equal(t, day(1, 1), feed.since["B"])

	summary := Summarize(results)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 4, summary.Fetched) // A: 1/6, B: 1/2, 1/3, 1/6

	a, err := store.Query(context.Background(), "A", day(1, 1), day(1, 31))
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, 9.0, a[0].Close)

	latest, found, err := store.LatestDate(context.Background(), "B")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, day(1, 6), latest)
}

func TestFetchAllPrices_Cancelled(t *testing.T) {
	feed := &fakePriceFeed{since: map[string]time.Time{}}
	c := NewCollector(nil, feed, nil, s0_data.NewMemoryPrices(), logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := c.FetchAllPrices(ctx, []string{"A", "B", "C"}, day(1, 1), time.Time{}, Config{Workers: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
	assert.Empty(t, feed.since)
}

func TestFetchAll(t *testing.T) {
	feed := &fakeFundamentalsFeed{fail: map[string]bool{}}
	prices := &fakePriceFeed{since: map[string]time.Time{}, days: []time.Time{day(2, 3)}}
	c := NewCollector(feed, prices, s0_data.NewMemoryFundamentals(), s0_data.NewMemoryPrices(), logger.Nop())
	plan := Plan{SinceYear: 2020, UntilYear: 2020, PriceSince: day(1, 1), ChipSince: day(1, 1)}

	results, err := c.FetchAll(context.Background(), []string{"A"}, plan, Config{Workers: 1})
	require.NoError(t, err)
	assert.Len(t, results.Fundamentals, 1)
	assert.Len(t, results.Prices, 1)
	assert.Nil(t, results.Chips)

	feed.fail["A"] = true
	results, err = c.FetchAll(context.Background(), []string{"A"}, plan, Config{Workers: 1})
	assert.ErrorContains(t, err, "fetch fundamentals: 1 of 1 stocks failed")
	assert.NotContains(t, err.Error(), "fetch prices")
	assert.Equal(t, 1, Summarize(results.Prices).Success)
}

func TestFetchAll_JoinsEveryFailure(t *testing.T) {
	feed := &fakeFundamentalsFeed{fail: map[string]bool{"A": true}}
	prices := &fakePriceFeed{since: map[string]time.Time{}}
	chips := &fakeChipFeed{fail: true}
	c := NewCollector(feed, prices, s0_data.NewMemoryFundamentals(), s0_data.NewMemoryPrices(), logger.Nop()).
		WithChips(chips, s0_data.NewMemoryChips())

	// until before since fails the price collection up front
	plan := Plan{SinceYear: 2020, UntilYear: 2020, PriceSince: day(3, 1), ChipSince: day(1, 1), Until: day(2, 1)}
	results, err := c.FetchAll(context.Background(), []string{"A"}, plan, Config{Workers: 1})
	require.Error(t, err)

	assert.ErrorContains(t, err, "fetch fundamentals")
	assert.ErrorContains(t, err, "fetch prices: until 2020-02-01 is before since 2020-03-01")
	assert.ErrorContains(t, err, "fetch chips")
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 3)
	assert.Nil(t, results.Prices)
	assert.Len(t, results.Chips, 1)
}

type fakeChipFeed struct {
	mu    sync.Mutex
	since map[string]time.Time
	days  []time.Time
	fail  bool
}

func (f *fakeChipFeed) FetchChips(_ context.Context, stockID string, since, until time.Time) ([]contracts.ChipRecord, error) {
	if f.fail {
		return nil, errors.New("chip feed down")
	}
	f.mu.Lock()
	f.since[stockID] = since
	f.mu.Unlock()
	var out []contracts.ChipRecord
	for _, d := range f.days {
		if d.After(since) && (until.IsZero() || !d.After(until)) {
			out = append(out,
				contracts.ChipRecord{StockID: stockID, Date: d, BranchID: "9200", BuyLots: 10},
				contracts.ChipRecord{StockID: stockID, Date: d, BranchID: "1020", SellLots: 4},
			)
		}
	}
	return out, nil
}

func TestFetchAllChips_ResumesFromLatest(t *testing.T) {
	store := s0_data.NewMemoryChips(contracts.ChipRecord{StockID: "A", Date: day(1, 3), BranchID: "9200", BuyLots: 1})
	feed := &fakeChipFeed{since: map[string]time.Time{}, days: []time.Time{day(1, 2), day(1, 3), day(1, 6), day(1, 7)}}
	c := NewCollector(nil, nil, nil, nil, logger.Nop()).WithChips(feed, store)

	results, err := c.FetchAllChips(context.Background(), []string{"A", "B"}, day(1, 1), day(1, 6), Config{Workers: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, day(1, 3), feed.since["A"])
	assert.Equal(t, day(1, 1), feed.since["B"])

	byID := map[string]FetchResult{}
	for _, r := range results {
		byID[r.StockID] = r
	}
	assert.Equal(t, 2, byID["A"].Inserted) // 01-06 only
	assert.Equal(t, 6, byID["B"].Inserted) // 01-02, 01-03, 01-06

	latest, found, err := store.LatestDate(context.Background(), "A")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, day(1, 6), latest)
}

func TestFetchAllChips_NotConfigured(t *testing.T) {
	c := NewCollector(nil, nil, nil, nil, logger.Nop())
	_, err := c.FetchAllChips(context.Background(), []string{"A"}, day(1, 1), time.Time{}, Config{})
	assert.ErrorContains(t, err, "not configured")
}

func TestConfigWorkers(t *testing.T) {
	assert.Equal(t, 1, Config{}.workers(10))
	assert.Equal(t, 3, Config{Workers: 8}.workers(3))
	assert.Equal(t, 4, Config{Workers: 4}.workers(0))
}
