package s2_signals

import (
	"math"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/pkg/logger"
	"github.com/wonny/evquant/pkg/mathutil"
)

// Valuation is the EV/EBITDA evaluation of one stock at one price
type Valuation struct {
	StockID     string  `json:"stock_id"`
	Price       float64 `json:"price"`
	MarketValue float64 `json:"market_value"`
	EV          float64 `json:"ev"`
	EBITDA      float64 `json:"ebitda"`
	Ratio       float64 `json:"ratio"`    // EBITDA*100/EV, 4 dp
	Reliable    bool    `json:"reliable"` // false when a zero-flag field was found
	Eligible    bool    `json:"eligible"` // price > 0, EV > 0 and EBITDA > 0
}

// Evaluate computes the valuation of f at price.
// ⭐ SSOT: EV/EBITDA is computed here only
func Evaluate(f contracts.StockFundamentals, price float64) Valuation {
	v := Valuation{
		StockID:  f.StockID,
		Price:    price,
		Reliable: !f.HasZeroFlag(),
	}
	if price <= 0 {
		return v
	}

	// par value stands in for shares outstanding
	v.MarketValue = math.Trunc(price * f.CommonStock)
	if v.MarketValue > 0 {
		v.EV = v.MarketValue + f.TotalLiabilities - f.CashAndEquivalents - f.ShortTermInvestment
	}

	if v.Reliable {
		v.EBITDA = f.OperatingIncome + f.Depreciation + f.Amortization
	}

	if v.EV > 0 && v.EBITDA > 0 {
		v.Ratio = mathutil.Round4(v.EBITDA * 100 / v.EV)
		v.Eligible = true
	}

	return v
}

// ValueCalculator evaluates fundamentals and logs the outcome
type ValueCalculator struct {
	logger *logger.Logger
}

// NewValueCalculator creates a new value calculator
func NewValueCalculator(log *logger.Logger) *ValueCalculator {
	if log == nil {
		log = logger.Nop()
	}
	return &ValueCalculator{
		logger: log.Module("s2_signals"),
	}
}

// Calculate evaluates f at price
func (c *ValueCalculator) Calculate(f contracts.StockFundamentals, price float64) Valuation {
	v := Evaluate(f, price)

	c.logger.WithFields(map[string]interface{}{
		"stock_id": f.StockID,
		"quarter":  f.Quarter.String(),
		"price":    price,
		"ev":       v.EV,
		"ebitda":   v.EBITDA,
		"ratio":    v.Ratio,
		"reliable": v.Reliable,
	}).Debug("Calculated EV/EBITDA")

	return v
}
