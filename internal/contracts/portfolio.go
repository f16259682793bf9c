package contracts

import "github.com/wonny/evquant/internal/quarter"

// Holding is an open position of the ledger
// ⭐ SSOT: at most one holding per stock id
type Holding struct {
	StockID    string          `json:"stock_id"`
	BuyPrice   float64         `json:"buy_price"`
	Units      float64         `json:"units"` // fractional, 4 dp
	BuyQuarter quarter.Quarter `json:"buy_quarter"`
}

// Cost returns the cash paid for the holding
func (h Holding) Cost() float64 {
	return h.BuyPrice * h.Units
}

// TradeRecord is a closed holding. Never mutated after creation.
type TradeRecord struct {
	Holding
	SellPrice   float64         `json:"sell_price"`
	SellQuarter quarter.Quarter `json:"sell_quarter"`
	Profit      *bool           `json:"profit"` // nil = unknown (flat exit)
}

// PnL returns (sell - buy) * units. A flat exit yields 0.
func (t TradeRecord) PnL() float64 {
	return (t.SellPrice - t.BuyPrice) * t.Units
}

// ProfitKnown reports whether the exit price was resolved
func (t TradeRecord) ProfitKnown() bool {
	return t.Profit != nil
}

// Won reports a known winning trade
func (t TradeRecord) Won() bool {
	return t.Profit != nil && *t.Profit
}

// AssetSnapshot is one point of the equity curve
type AssetSnapshot struct {
	Quarter quarter.Quarter `json:"quarter"`
	Assets  float64         `json:"assets"`
}
