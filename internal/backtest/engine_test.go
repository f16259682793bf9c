package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/s0_data"
	"github.com/wonny/evquant/internal/selection"
	"github.com/wonny/evquant/pkg/logger"
)

var (
	q1 = quarter.MustParse("20191")
	q2 = quarter.MustParse("20192")
	q3 = quarter.MustParse("20193")
)

// fixture: with par 10 and no debt or cash, ratio = operating income * 100 / (price * 10)
//
//	20191: A=10 (op 10), B=20 (op 10), C=40 (op 10)  -> A, B
//	20192: A=12 (op 1),  B=18 (op 10), C=40 (op 20)  -> B, C
//	20193: B=20, C=50                                 (final liquidation)
func fixture() (*s0_data.MemoryFundamentals, *s0_data.MemoryPrices) {
	report := func(id string, q quarter.Quarter, op float64) contracts.StockFundamentals {
		return contracts.StockFundamentals{
			StockID: id, Quarter: q,
			GrossProfit: 1, OperatingIncome: op, NetIncome: 1, ParentNetIncome: 1,
			CommonStock: 10,
		}
	}
	after := func(q quarter.Quarter) time.Time {
		return quarter.EarningsDeadline(q).AddDate(0, 0, 1)
	}
	candle := func(id string, q quarter.Quarter, close float64) contracts.PriceRecord {
		return contracts.PriceRecord{StockID: id, Date: after(q), Close: close}
	}

	fundamentals := s0_data.NewMemoryFundamentals(
		report("A", q1, 10), report("B", q1, 10), report("C", q1, 10),
		report("A", q2, 1), report("B", q2, 10), report("C", q2, 20),
	)
	prices := s0_data.NewMemoryPrices(
		candle("A", q1, 10), candle("B", q1, 20), candle("C", q1, 40),
		candle("A", q2, 12), candle("B", q2, 18), candle("C", q2, 40),
		candle("B", q3, 20), candle("C", q3, 50),
	)
	return fundamentals, prices
}

func testConfig(policy PolicyName) Config {
	cfg := DefaultConfig()
	cfg.Start = q1
	cfg.End = q3
	cfg.TopN = 2
	cfg.Policy = policy
	return cfg
}

func TestEngine_FullRebalance(t *testing.T) {
	fundamentals, prices := fixture()
	cache := s0_data.NewMemoryQuarterPrices()
	engine := NewEngine(fundamentals, prices, cache, logger.Nop())

	result, err := engine.Run(context.Background(), testConfig(PolicyFull))
	require.NoError(t, err)

	require.Len(t, result.Rankings, 2)
	assert.Equal(t, []string{"A", "B"}, result.Rankings[0].IDs())
	assert.Equal(t, []string{"B", "C"}, result.Rankings[1].IDs())
	assert.Equal(t, 2, result.Quarters)

	assert.Equal(t, []contracts.AssetSnapshot{
		{Quarter: q1, Assets: 3000},
		{Quarter: q2, Assets: 3150},
		{Quarter: q3, Assets: 3718.75},
	}, result.Assets)

	assert.Equal(t, 4, result.TotalTrades)
	assert.Equal(t, 3, result.WinningTrades)
	assert.Equal(t, 1, result.LosingTrades)
	assert.Equal(t, 0, result.UnknownTrades)
	require.NotNil(t, result.WinRate)
	assert.Equal(t, 0.75, *result.WinRate)

	assert.Equal(t, 718.75, result.HistoryProfit)
	assert.Equal(t, 3718.75, result.FinalCapital)
	assert.Equal(t, 0.2396, result.TotalReturn)
	assert.Equal(t, 0.5366, result.CAGR)
	assert.Equal(t, 0.0, result.MaxDrawdown)
	assert.Equal(t, 3, result.Risk.Periods)
	require.NotNil(t, result.Risk.Best)
	assert.Equal(t, q3, result.Risk.Best.Quarter)

	// derived prices were written back to the quarter cache
	price, found, err := cache.Find(context.Background(), "C", q3)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 50.0, price)
}

func TestEngine_IncrementalRebalance(t *testing.T) {
	fundamentals, prices := fixture()
	engine := NewEngine(fundamentals, prices, nil, logger.Nop())

	result, err := engine.Run(context.Background(), testConfig(PolicyIncremental))
	require.NoError(t, err)

	assert.Equal(t, []contracts.AssetSnapshot{
		{Quarter: q1, Assets: 3000},
		{Quarter: q2, Assets: 3150},
		{Quarter: q3, Assets: 3750},
	}, result.Assets)

	require.Len(t, result.Trades, 3)
	assert.Equal(t, "A", result.Trades[0].StockID)
	assert.Equal(t, q2, result.Trades[0].SellQuarter)

	assert.Equal(t, 2, result.WinningTrades)
	assert.Equal(t, 1, result.LosingTrades) // B bought and sold at 20
	require.NotNil(t, result.WinRate)
	assert.Equal(t, 0.6667, *result.WinRate)
	assert.Equal(t, 750.0, result.HistoryProfit)
	assert.Equal(t, 3750.0, result.FinalCapital)
	assert.Equal(t, 0.5625, result.CAGR)
}

func TestEngine_HistoryProfitMatchesTrades(t *testing.T) {
	fundamentals, prices := fixture()
	engine := NewEngine(fundamentals, prices, nil, logger.Nop())

	for _, policy := range []PolicyName{PolicyFull, PolicyIncremental} {
		result, err := engine.Run(context.Background(), testConfig(policy))
		require.NoError(t, err)

		sum := 0.0
		for _, tr := range result.Trades {
			sum += tr.PnL()
		}
		assert.InDelta(t, sum, result.HistoryProfit, 1e-9, string(policy))
		assert.InDelta(t, result.FinalCapital-result.InitialCapital, result.HistoryProfit, 1e-9, string(policy))
	}
}

func TestEngine_DelayedExit(t *testing.T) {
	fundamentals, prices := fixture()
	// nothing 30 days after the deadlines: every delayed exit is flat
	engine := NewEngine(fundamentals, prices, nil, logger.Nop())

	cfg := testConfig(PolicyFull)
	cfg.ExitDelayDays = 30

	result, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, result.UnknownTrades)
	assert.Nil(t, result.WinRate)
	assert.Equal(t, 0.0, result.HistoryProfit)
	// 83.3333 units of B at 18 lose the rounding remainder
	assert.InDelta(t, 3000.0, result.FinalCapital, 1e-3)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	winRate, present := decoded["win_rate"]
	assert.True(t, present)
	assert.Nil(t, winRate)
}

func TestEngine_MissingFundamentalsPolicy(t *testing.T) {
	fundamentals, prices := fixture()
	engine := NewEngine(fundamentals, prices, nil, logger.Nop())

	cfg := testConfig(PolicyFull)
	cfg.Universe = []string{"A", "B", "C", "GONE"}

	_, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	cfg.OnMissingFundamentals = selection.MissingAbort
	_, err = engine.Run(context.Background(), cfg)
	var missing *contracts.MissingFundamentalsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "GONE", missing.StockID)
}

func TestEngine_Cancelled(t *testing.T) {
	fundamentals, prices := fixture()
	engine := NewEngine(fundamentals, prices, nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, testConfig(PolicyFull))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"end before start", func(c *Config) { c.End = c.Start }, true},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }, true},
		{"zero top", func(c *Config) { c.TopN = 0 }, true},
		{"unknown policy", func(c *Config) { c.Policy = "yolo" }, true},
		{"negative delay", func(c *Config) { c.ExitDelayDays = -1 }, true},
		{"unknown price policy", func(c *Config) { c.OnMissingPrice = "retry" }, true},
		{"unknown fundamentals policy", func(c *Config) { c.OnMissingFundamentals = "" }, true},
		{"invalid quarter", func(c *Config) { c.Start = quarter.Quarter{Year: 2016, Number: 5} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCalculateMaxDrawdown(t *testing.T) {
	curve := []contracts.AssetSnapshot{
		{Assets: 1000}, {Assets: 1200}, {Assets: 900}, {Assets: 1300}, {Assets: 1100},
	}
	assert.Equal(t, 0.25, calculateMaxDrawdown(1000, curve))
	assert.Equal(t, 0.0, calculateMaxDrawdown(1000, nil))
	assert.Equal(t, 0.5, calculateMaxDrawdown(1000, []contracts.AssetSnapshot{{Assets: 500}}))
}

func TestCalculateCAGR(t *testing.T) {
	assert.Equal(t, 0.21, calculateCAGR(1000, 1464.1, 2))
	assert.Equal(t, 0.0, calculateCAGR(1000, 1500, 0))
	assert.Equal(t, 0.0, calculateCAGR(1000, 0, 2))
}
