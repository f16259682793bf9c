package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/portfolio"
	"github.com/wonny/evquant/internal/pricing"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/risk"
	"github.com/wonny/evquant/internal/selection"
	"github.com/wonny/evquant/pkg/logger"
)

// Engine runs quarterly rebalancing backtests
// ⭐ SSOT: backtest orchestration lives here only
type Engine struct {
	fundamentals contracts.FundamentalsRepository
	daily        contracts.DailyPriceRepository
	cache        contracts.QuarterlyPriceCache
	logger       *logger.Logger
}

// Config holds backtest configuration
type Config struct {
	Start                 quarter.Quarter         `json:"start"`
	End                   quarter.Quarter         `json:"end"` // exclusive; final liquidation quarter
	InitialCapital        float64                 `json:"initial_capital"`
	TopN                  int                     `json:"top_n"`
	Universe              []string                `json:"universe,omitempty"` // empty = every stock with a report
	Policy                PolicyName              `json:"policy"`
	ExitDelayDays         int                     `json:"exit_delay_days"` // 0 = standard exit pricing
	OnMissingPrice        selection.MissingPolicy `json:"on_missing_price"`
	OnMissingFundamentals selection.MissingPolicy `json:"on_missing_fundamentals"`
}

// DefaultConfig is the standard quarterly screen: 2016Q1..2021Q1, 3000 capital, top 30
func DefaultConfig() Config {
	return Config{
		Start:                 quarter.Quarter{Year: 2016, Number: 1},
		End:                   quarter.Quarter{Year: 2021, Number: 1},
		InitialCapital:        3000,
		TopN:                  selection.DefaultTopN,
		Policy:                PolicyFull,
		OnMissingPrice:        selection.MissingSkip,
		OnMissingFundamentals: selection.MissingSkip,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !c.Start.Valid() || !c.End.Valid() {
		return fmt.Errorf("start and end must be valid quarters")
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("start %s must be before end %s", c.Start, c.End)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive")
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive")
	}
	if !c.Policy.Valid() {
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	if c.ExitDelayDays < 0 {
		return fmt.Errorf("exit delay must not be negative")
	}
	if !c.OnMissingPrice.Valid() {
		return fmt.Errorf("unknown missing price policy %q", c.OnMissingPrice)
	}
	if !c.OnMissingFundamentals.Valid() {
		return fmt.Errorf("unknown missing fundamentals policy %q", c.OnMissingFundamentals)
	}
	return nil
}

// SkippedBuy is a stock dropped from a buy list because its price was missing
type SkippedBuy struct {
	StockID string          `json:"stock_id"`
	Quarter quarter.Quarter `json:"quarter"`
}

// Result holds backtest results
type Result struct {
	Config   Config        `json:"config"`
	Quarters int           `json:"quarters"`
	Duration time.Duration `json:"duration"`

	Rankings []contracts.QuarterRanking `json:"rankings"`
	Assets   []contracts.AssetSnapshot  `json:"assets"`
	Trades   []contracts.TradeRecord    `json:"trades"`
	Skipped  []SkippedBuy               `json:"skipped,omitempty"`

	// Performance metrics
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	HistoryProfit  float64 `json:"history_profit"`
	TotalReturn    float64 `json:"total_return"`
	CAGR           float64 `json:"cagr"`
	MaxDrawdown    float64 `json:"max_drawdown"`

	// Trading metrics
	WinRate       *float64 `json:"win_rate"` // nil when no trade has a known outcome
	TotalTrades   int      `json:"total_trades"`
	WinningTrades int      `json:"winning_trades"`
	LosingTrades  int      `json:"losing_trades"`
	UnknownTrades int      `json:"unknown_trades"`

	Risk       risk.Report   `json:"risk"`
	PriceStats pricing.Stats `json:"price_stats"`
}

// NewEngine creates a new backtest engine. cache may be nil.
func NewEngine(
	fundamentals contracts.FundamentalsRepository,
	daily contracts.DailyPriceRepository,
	cache contracts.QuarterlyPriceCache,
	log *logger.Logger,
) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		fundamentals: fundamentals,
		daily:        daily,
		cache:        cache,
		logger:       log.Module("backtest"),
	}
}

// Run executes a backtest: for each quarter in [Start, End) rank then rebalance,
// finally liquidate everything at End.
// Each run owns its price memo and ledger, so concurrent runs do not share state.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"start":           cfg.Start.String(),
		"end":             cfg.End.String(),
		"initial_capital": cfg.InitialCapital,
		"top_n":           cfg.TopN,
		"policy":          string(cfg.Policy),
		"exit_delay_days": cfg.ExitDelayDays,
	}).Info("Starting backtest")

	startTime := time.Now()

	resolver := pricing.NewResolver(e.daily, e.cache, e.logger)
	var ranker contracts.Ranker = selection.NewRanker(e.fundamentals, resolver, cfg.TopN, cfg.OnMissingFundamentals, e.logger)
	ledger := portfolio.NewLedger(cfg.InitialCapital, cfg.Start, resolver, e.logger)
	buyer := NewBuyer(cfg.OnMissingPrice, e.logger)
	policy := NewPolicy(cfg.Policy, cfg.ExitDelayDays, buyer, e.logger)

	result := &Result{
		Config:         cfg,
		InitialCapital: cfg.InitialCapital,
	}

	for q := range quarter.Sequence(cfg.Start, cfg.End) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ranking, err := ranker.Rank(ctx, q, cfg.Universe)
		if err != nil {
			return nil, fmt.Errorf("rank %s: %w", q, err)
		}
		result.Rankings = append(result.Rankings, *ranking)

		if err := policy.Rebalance(ctx, ledger, ranking.IDs(), q); err != nil {
			return nil, fmt.Errorf("rebalance %s: %w", q, err)
		}
		result.Quarters++
	}

	if err := liquidate(ctx, ledger, cfg.End, cfg.ExitDelayDays); err != nil {
		return nil, fmt.Errorf("final liquidation at %s: %w", cfg.End, err)
	}

	profit, err := ledger.HistoryProfit(ctx, cfg.End)
	if err != nil {
		return nil, fmt.Errorf("history profit: %w", err)
	}

	result.HistoryProfit = profit
	result.Assets = ledger.Assets()
	result.Trades = ledger.Trades()
	result.Skipped = buyer.Skipped()
	result.FinalCapital = ledger.Cash()
	if rate, ok := ledger.WinRate(); ok {
		result.WinRate = &rate
	}
	result.PriceStats = resolver.Stats()
	result.Duration = time.Since(startTime)

	stats := ledger.TradeStats()
	result.WinningTrades = stats.Wins
	result.LosingTrades = stats.Losses
	result.UnknownTrades = stats.Unknown
	result.TotalTrades = len(result.Trades)

	calculateMetrics(result)

	fields := map[string]interface{}{
		"duration":       result.Duration.Seconds(),
		"quarters":       result.Quarters,
		"trades":         result.TotalTrades,
		"history_profit": result.HistoryProfit,
		"total_return":   fmt.Sprintf("%.2f%%", result.TotalReturn*100),
		"max_drawdown":   fmt.Sprintf("%.2f%%", result.MaxDrawdown*100),
	}
	if result.WinRate != nil {
		fields["win_rate"] = *result.WinRate
	}
	e.logger.WithFields(fields).Info("Backtest completed")

	return result, nil
}

func liquidate(ctx context.Context, ledger *portfolio.Ledger, q quarter.Quarter, exitDelayDays int) error {
	if exitDelayDays > 0 {
		return ledger.SellAllStocksDelayed(ctx, q, exitDelayDays)
	}
	return ledger.SellAllStocks(ctx, q)
}
