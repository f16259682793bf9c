package contracts

import (
	"errors"
	"fmt"

	"github.com/wonny/evquant/internal/quarter"
)

// ⭐ SSOT: backtest error taxonomy

var (
	// ErrDuplicateHolding is returned when a buy would open a second holding for a stock id
	ErrDuplicateHolding = errors.New("duplicate holding")

	// ErrUnknownHolding is returned when selling a stock id that is not held
	ErrUnknownHolding = errors.New("unknown holding")

	// ErrNoCash is returned when buying with no cash left
	ErrNoCash = errors.New("no cash to invest")
)

// MissingPriceError means no price could be resolved for a required buy or mark-to-market
type MissingPriceError struct {
	StockID string
	Quarter quarter.Quarter
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no price for %s after %s report", e.StockID, e.Quarter)
}

// MissingFundamentalsError means the report of a stock/quarter is absent
type MissingFundamentalsError struct {
	StockID string
	Quarter quarter.Quarter
}

func (e *MissingFundamentalsError) Error() string {
	return fmt.Sprintf("no fundamentals for %s in %s", e.StockID, e.Quarter)
}

// InvalidQuarterOrderError means an operation was requested before the last observed quarter
type InvalidQuarterOrderError struct {
	Requested quarter.Quarter
	Last      quarter.Quarter
}

func (e *InvalidQuarterOrderError) Error() string {
	return fmt.Sprintf("quarter %s is earlier than last observed %s", e.Requested, e.Last)
}
