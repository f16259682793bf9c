package contracts

import (
	"time"

	"github.com/wonny/evquant/internal/quarter"
)

// StockFundamentals is one quarterly report of a stock
// ⭐ SSOT: S0 → S2 raw report fields, immutable once fetched
type StockFundamentals struct {
	StockID string          `json:"stock_id"`
	Quarter quarter.Quarter `json:"quarter"`

	Revenue             float64 `json:"revenue"`
	GrossProfit         float64 `json:"gross_profit"`
	OperatingIncome     float64 `json:"operating_income"`
	NetIncome           float64 `json:"net_income"`
	ParentNetIncome     float64 `json:"parent_net_income"` // attributable to owners of the parent
	CashAndEquivalents  float64 `json:"cash_and_equivalents"`
	ShortTermInvestment float64 `json:"short_term_investment"`
	TotalLiabilities    float64 `json:"total_liabilities"`
	TotalEquity         float64 `json:"total_equity"`
	CommonStock         float64 `json:"common_stock"` // par value, used as shares outstanding proxy
	Depreciation        float64 `json:"depreciation"`
	Amortization        float64 `json:"amortization"`
}

// HasZeroFlag reports whether any of the fields the upstream report zeroes on bad data is exactly 0
func (f *StockFundamentals) HasZeroFlag() bool {
	return f.GrossProfit == 0 || f.OperatingIncome == 0 || f.NetIncome == 0 || f.ParentNetIncome == 0
}

// PriceRecord is one daily candle
type PriceRecord struct {
	StockID string    `json:"stock_id"`
	Date    time.Time `json:"date"` // calendar date, midnight UTC
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  int64     `json:"volume"`
}

// ChipRecord is one broker branch's trading in a stock on one day, counted in lots
type ChipRecord struct {
	StockID    string    `json:"stock_id"`
	Date       time.Time `json:"date"` // calendar date, midnight UTC
	BranchID   string    `json:"branch_id"`
	BranchName string    `json:"branch_name"`
	BuyLots    int64     `json:"buy_lots"`
	SellLots   int64     `json:"sell_lots"`
	BuyAmount  int64     `json:"buy_amount"`
	SellAmount int64     `json:"sell_amount"`
}

// NetLots is bought minus sold
func (c ChipRecord) NetLots() int64 {
	return c.BuyLots - c.SellLots
}

// Day normalizes t to its calendar date at midnight UTC
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
