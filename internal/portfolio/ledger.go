package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/pkg/logger"
	"github.com/wonny/evquant/pkg/mathutil"
)

// State is the ledger state
type State string

const (
	StateEmpty   State = "empty"   // no holdings
	StateHolding State = "holding" // one or more holdings
)

// TradeStats counts closed trades by outcome
type TradeStats struct {
	Wins    int `json:"wins"`
	Losses  int `json:"losses"`
	Unknown int `json:"unknown"` // flat exits
}

// Ledger holds cash, open holdings, closed trades and the asset history of one run.
// ⭐ SSOT: all cash and holding mutations go through the ledger
// A Ledger is owned by a single run and is not safe for concurrent use.
type Ledger struct {
	prices contracts.PriceSource
	logger *logger.Logger

	initialCapital float64
	cash           decimal.Decimal
	holdings       []contracts.Holding // insertion order
	trades         []contracts.TradeRecord
	assets         []contracts.AssetSnapshot
	lastQuarter    quarter.Quarter
}

// NewLedger creates an empty ledger with starting capital at the starting quarter
func NewLedger(capital float64, start quarter.Quarter, prices contracts.PriceSource, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{
		prices:         prices,
		logger:         log.Module("portfolio"),
		initialCapital: capital,
		cash:           decimal.NewFromFloat(capital),
		lastQuarter:    start,
	}
}

func (l *Ledger) checkQuarter(q quarter.Quarter) error {
	if q.Before(l.lastQuarter) {
		return &contracts.InvalidQuarterOrderError{Requested: q, Last: l.lastQuarter}
	}
	return nil
}

// BuyStocks splits the cash evenly across ids. Every price is resolved before the ledger changes,
// so a missing price leaves it untouched.
func (l *Ledger) BuyStocks(ctx context.Context, ids []string, q quarter.Quarter) error {
	if err := l.checkQuarter(q); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || l.holds(id) {
			return fmt.Errorf("buy %s at %s: %w", id, q, contracts.ErrDuplicateHolding)
		}
		seen[id] = struct{}{}
	}

	if !l.cash.IsPositive() {
		return fmt.Errorf("buy at %s: %w", q, contracts.ErrNoCash)
	}

	prices := make([]float64, len(ids))
	for i, id := range ids {
		price, err := l.prices.PriceAfterQuarterReport(ctx, id, q, contracts.PriceOptions{RaiseOnMissing: true})
		if err != nil {
			return fmt.Errorf("buy %s: %w", id, err)
		}
		if price <= 0 {
			return fmt.Errorf("buy %s: %w", id, &contracts.MissingPriceError{StockID: id, Quarter: q})
		}
		prices[i] = price
	}

	share := l.cash.Div(decimal.NewFromInt(int64(len(ids))))
	for i, id := range ids {
		units := share.Div(decimal.NewFromFloat(prices[i])).Round(mathutil.Places)
		l.holdings = append(l.holdings, contracts.Holding{
			StockID:    id,
			BuyPrice:   prices[i],
			Units:      units.InexactFloat64(),
			BuyQuarter: q,
		})
	}

	invested := l.cash
	l.cash = decimal.Zero
	l.lastQuarter = q

	l.logger.WithFields(map[string]interface{}{
		"quarter":  q.String(),
		"stocks":   len(ids),
		"invested": invested.InexactFloat64(),
	}).Info("Bought stocks")

	return nil
}

// SellAllStocks liquidates every holding at the standard exit price and records an asset snapshot.
// An unresolvable price becomes a flat exit with unknown profit.
func (l *Ledger) SellAllStocks(ctx context.Context, q quarter.Quarter) error {
	return l.sellAll(ctx, q, 0)
}

// SellAllStocksDelayed liquidates at the first close dayOffset days after the earnings deadline
func (l *Ledger) SellAllStocksDelayed(ctx context.Context, q quarter.Quarter, dayOffset int) error {
	return l.sellAll(ctx, q, dayOffset)
}

func (l *Ledger) sellAll(ctx context.Context, q quarter.Quarter, dayOffset int) error {
	if err := l.checkQuarter(q); err != nil {
		return err
	}

	ids := make([]string, len(l.holdings))
	for i, h := range l.holdings {
		ids[i] = h.StockID
	}

	if err := l.sell(ctx, ids, q, dayOffset); err != nil {
		return err
	}

	l.assets = append(l.assets, contracts.AssetSnapshot{
		Quarter: q,
		Assets:  mathutil.Round4(l.cash.InexactFloat64()),
	})
	return nil
}

// SellStocks closes the named holdings at the standard exit price without recording a snapshot
func (l *Ledger) SellStocks(ctx context.Context, ids []string, q quarter.Quarter) error {
	if err := l.checkQuarter(q); err != nil {
		return err
	}
	for _, id := range ids {
		if !l.holds(id) {
			return fmt.Errorf("sell %s at %s: %w", id, q, contracts.ErrUnknownHolding)
		}
	}
	return l.sell(ctx, ids, q, 0)
}

// sell resolves every exit price first, then closes the holdings in ids
func (l *Ledger) sell(ctx context.Context, ids []string, q quarter.Quarter, dayOffset int) error {
	exits := make(map[string]float64, len(ids))
	for _, id := range ids {
		price, err := l.prices.PriceAfterQuarterReport(ctx, id, q, contracts.PriceOptions{DayOffset: dayOffset})
		if err != nil {
			return fmt.Errorf("sell %s: %w", id, err)
		}
		exits[id] = price
	}

	flat := 0
	kept := l.holdings[:0:0]
	for _, h := range l.holdings {
		price, selling := exits[h.StockID]
		if !selling {
			kept = append(kept, h)
			continue
		}

		trade := contracts.TradeRecord{Holding: h, SellQuarter: q}
		if price <= 0 {
			// delisted or never crawled: sell at cost, outcome unknown
			trade.SellPrice = h.BuyPrice
			flat++
		} else {
			trade.SellPrice = price
			profit := price > h.BuyPrice
			trade.Profit = &profit
		}

		proceeds := decimal.NewFromFloat(h.Units).Mul(decimal.NewFromFloat(trade.SellPrice))
		l.cash = l.cash.Add(proceeds)
		l.trades = append(l.trades, trade)
	}
	l.holdings = kept
	l.lastQuarter = q

	if len(ids) > 0 {
		l.logger.WithFields(map[string]interface{}{
			"quarter":    q.String(),
			"sold":       len(ids),
			"flat_exits": flat,
			"day_offset": dayOffset,
			"cash":       l.cash.InexactFloat64(),
		}).Info("Sold stocks")
	}

	return nil
}

// RecordAssets appends a snapshot of the given asset value
func (l *Ledger) RecordAssets(q quarter.Quarter, assets float64) error {
	if err := l.checkQuarter(q); err != nil {
		return err
	}
	l.assets = append(l.assets, contracts.AssetSnapshot{Quarter: q, Assets: mathutil.Round4(assets)})
	l.lastQuarter = q
	return nil
}

// Equity returns cash plus open holdings marked at q; an unresolvable holding counts at cost
func (l *Ledger) Equity(ctx context.Context, q quarter.Quarter) (float64, error) {
	total := l.cash
	for _, h := range l.holdings {
		price, err := l.prices.PriceAfterQuarterReport(ctx, h.StockID, q, contracts.PriceOptions{})
		if err != nil {
			return 0, fmt.Errorf("mark %s: %w", h.StockID, err)
		}
		if price <= 0 {
			price = h.BuyPrice
		}
		total = total.Add(decimal.NewFromFloat(h.Units).Mul(decimal.NewFromFloat(price)))
	}
	return mathutil.Round4(total.InexactFloat64()), nil
}

// HistoryProfit sums closed trade PnL plus open holdings marked to market at endQ, rounded to 4 dp.
// An open holding without a price at endQ fails with MissingPriceError.
func (l *Ledger) HistoryProfit(ctx context.Context, endQ quarter.Quarter) (float64, error) {
	profit := decimal.Zero
	for _, t := range l.trades {
		diff := decimal.NewFromFloat(t.SellPrice).Sub(decimal.NewFromFloat(t.BuyPrice))
		profit = profit.Add(diff.Mul(decimal.NewFromFloat(t.Units)))
	}

	for _, h := range l.holdings {
		price, err := l.prices.PriceAfterQuarterReport(ctx, h.StockID, endQ, contracts.PriceOptions{RaiseOnMissing: true})
		if err != nil {
			return 0, fmt.Errorf("mark %s: %w", h.StockID, err)
		}
		diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(h.BuyPrice))
		profit = profit.Add(diff.Mul(decimal.NewFromFloat(h.Units)))
	}

	return profit.Round(mathutil.Places).InexactFloat64(), nil
}

// WinRate returns wins / trades with a known outcome, rounded to 4 dp.
// ok is false when no trade has a known outcome.
func (l *Ledger) WinRate() (rate float64, ok bool) {
	stats := l.TradeStats()
	known := stats.Wins + stats.Losses
	if known == 0 {
		return 0, false
	}
	return mathutil.Round4(float64(stats.Wins) / float64(known)), true
}

// TradeStats counts closed trades by outcome
func (l *Ledger) TradeStats() TradeStats {
	var s TradeStats
	for _, t := range l.trades {
		switch {
		case !t.ProfitKnown():
			s.Unknown++
		case t.Won():
			s.Wins++
		default:
			s.Losses++
		}
	}
	return s
}

// State returns StateEmpty or StateHolding
func (l *Ledger) State() State {
	if len(l.holdings) == 0 {
		return StateEmpty
	}
	return StateHolding
}

// Cash returns the uninvested cash
func (l *Ledger) Cash() float64 {
	return l.cash.InexactFloat64()
}

// InitialCapital returns the starting capital
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// LastQuarter returns the latest quarter the ledger has observed
func (l *Ledger) LastQuarter() quarter.Quarter {
	return l.lastQuarter
}

// Holdings returns a copy of the open holdings in purchase order
func (l *Ledger) Holdings() []contracts.Holding {
	return append([]contracts.Holding(nil), l.holdings...)
}

// HoldingIDs returns the ids of the open holdings in purchase order
func (l *Ledger) HoldingIDs() []string {
	ids := make([]string, len(l.holdings))
	for i, h := range l.holdings {
		ids[i] = h.StockID
	}
	return ids
}

// Trades returns a copy of the closed trades
func (l *Ledger) Trades() []contracts.TradeRecord {
	return append([]contracts.TradeRecord(nil), l.trades...)
}

// Assets returns a copy of the asset history
func (l *Ledger) Assets() []contracts.AssetSnapshot {
	return append([]contracts.AssetSnapshot(nil), l.assets...)
}

func (l *Ledger) holds(id string) bool {
	for _, h := range l.holdings {
		if h.StockID == id {
			return true
		}
	}
	return false
}
