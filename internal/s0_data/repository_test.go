package s0_data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/pkg/config"
	"github.com/wonny/evquant/pkg/database"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, &config.Config{Database: config.DatabaseConfig{URL: url, MaxConns: 2, MinConns: 1}})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	for _, table := range []string{"data.stock_fundamentals", "data.daily_prices", "data.quarter_prices"} {
		_, err := db.Pool.Exec(ctx, "DELETE FROM "+table+" WHERE stock_id LIKE 'T%'")
		require.NoError(t, err)
	}

	return NewRepository(db.Pool)
}

func TestFundamentalsRepository(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()
	q := quarter.MustParse("20201")

	f := &contracts.StockFundamentals{
		StockID: "T2330", Quarter: q,
		GrossProfit: 1, OperatingIncome: 2, NetIncome: 3, ParentNetIncome: 4,
		TotalLiabilities: 100.5, CommonStock: 25.9,
	}

	stored, err := repo.Fundamentals().InsertIfAbsent(ctx, f)
	require.NoError(t, err)
	assert.True(t, stored)

	dup := *f
	dup.GrossProfit = 999
	stored, err = repo.Fundamentals().InsertIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, stored)

	got, err := repo.Fundamentals().Find(ctx, "T2330", q)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	got, err = repo.Fundamentals().Find(ctx, "T2330", q.Next())
	require.NoError(t, err)
	assert.Nil(t, got)

	ids, err := repo.Fundamentals().ListStockIDs(ctx, q)
	require.NoError(t, err)
	assert.Contains(t, ids, "T2330")
}

func TestPriceRepository(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Prices().SaveBatch(ctx, []contracts.PriceRecord{
		{StockID: "T1101", Date: day(2020, 5, 19), Close: 41, Volume: 10},
		{StockID: "T1101", Date: day(2020, 5, 18), Close: 40, Volume: 10},
	}))

	got, err := repo.Prices().Query(ctx, "T1101", day(2020, 5, 16), day(2020, 5, 24))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(2020, 5, 18), got[0].Date)
	assert.Equal(t, 40.0, got[0].Close)

	latest, ok, err := repo.Prices().LatestDate(ctx, "T1101")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, day(2020, 5, 19), latest)
}

func TestQuarterPriceRepository(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()
	q := quarter.MustParse("20194")

	require.NoError(t, repo.QuarterPrices().InsertIfAbsent(ctx, "T2330", q, 300))
	require.NoError(t, repo.QuarterPrices().InsertIfAbsent(ctx, "T2330", q, 301))

	price, found, err := repo.QuarterPrices().Find(ctx, "T2330", q)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 300.0, price)
}

func TestQuarterPriceCacheSelection(t *testing.T) {
	repo := NewRepository(nil)

	cache, err := repo.QuarterPriceCache(&config.Config{PriceCache: config.PriceCachePostgres}, nil)
	require.NoError(t, err)
	assert.Same(t, repo.QuarterPrices(), cache)

	_, err = repo.QuarterPriceCache(&config.Config{PriceCache: config.PriceCacheRedis}, nil)
	assert.Error(t, err)

	_, err = repo.QuarterPriceCache(&config.Config{PriceCache: "mongo"}, nil)
	assert.Error(t, err)
}
