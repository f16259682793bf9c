package backtest

import (
	"context"
	"errors"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/portfolio"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/selection"
	"github.com/wonny/evquant/pkg/logger"
)

// PolicyName selects a rebalance policy
type PolicyName string

const (
	PolicyFull        PolicyName = "full"        // liquidate everything, reinvest into the new list
	PolicyIncremental PolicyName = "incremental" // sell leavers, buy entrants with the freed cash
)

// Valid reports whether p names a known policy
func (p PolicyName) Valid() bool {
	return p == PolicyFull || p == PolicyIncremental
}

// RebalancePolicy moves the ledger onto a quarter's ranked list
type RebalancePolicy interface {
	Name() PolicyName
	Rebalance(ctx context.Context, ledger *portfolio.Ledger, ids []string, q quarter.Quarter) error
}

// NewPolicy builds the named policy; unknown names fall back to PolicyFull
func NewPolicy(name PolicyName, exitDelayDays int, buyer *Buyer, log *logger.Logger) RebalancePolicy {
	if name == PolicyIncremental {
		return &IncrementalRebalance{buyer: buyer, logger: log}
	}
	return &FullRebalance{exitDelayDays: exitDelayDays, buyer: buyer}
}

// Buyer applies the missing-price policy to ledger buys
type Buyer struct {
	onMissing selection.MissingPolicy
	logger    *logger.Logger
	skipped   []SkippedBuy
}

// NewBuyer creates a buyer
func NewBuyer(onMissing selection.MissingPolicy, log *logger.Logger) *Buyer {
	if log == nil {
		log = logger.Nop()
	}
	return &Buyer{onMissing: onMissing, logger: log}
}

// Buy buys ids at q. Under MissingSkip a stock without a price is dropped and the buy retried
// with the rest; under MissingAbort the MissingPriceError propagates.
func (b *Buyer) Buy(ctx context.Context, ledger *portfolio.Ledger, ids []string, q quarter.Quarter) error {
	ids = append([]string(nil), ids...)
	for {
		err := ledger.BuyStocks(ctx, ids, q)
		if err == nil {
			return nil
		}

		if errors.Is(err, contracts.ErrNoCash) {
			b.logger.WithField("quarter", q.String()).Warn("No cash left to invest")
			return nil
		}

		var missing *contracts.MissingPriceError
		if b.onMissing != selection.MissingSkip || !errors.As(err, &missing) {
			return err
		}

		b.logger.WithFields(map[string]interface{}{
			"stock_id": missing.StockID,
			"quarter":  q.String(),
		}).Warn("No buy price, dropping stock from this quarter")
		b.skipped = append(b.skipped, SkippedBuy{StockID: missing.StockID, Quarter: q})
		ids = without(ids, missing.StockID)
	}
}

// Skipped returns the stocks dropped so far
func (b *Buyer) Skipped() []SkippedBuy {
	return append([]SkippedBuy(nil), b.skipped...)
}

// FullRebalance sells every holding and reinvests all cash into the new list
type FullRebalance struct {
	exitDelayDays int
	buyer         *Buyer
}

// Name returns PolicyFull
func (p *FullRebalance) Name() PolicyName { return PolicyFull }

// Rebalance liquidates, then buys ids
func (p *FullRebalance) Rebalance(ctx context.Context, ledger *portfolio.Ledger, ids []string, q quarter.Quarter) error {
	if err := liquidate(ctx, ledger, q, p.exitDelayDays); err != nil {
		return err
	}
	return p.buyer.Buy(ctx, ledger, ids, q)
}

// IncrementalRebalance keeps stocks that stay in the list, sells leavers and
// spreads the freed cash over entrants, then records a mark-to-market snapshot
type IncrementalRebalance struct {
	buyer  *Buyer
	logger *logger.Logger
}

// Name returns PolicyIncremental
func (p *IncrementalRebalance) Name() PolicyName { return PolicyIncremental }

// Rebalance diffs the held set against ids
func (p *IncrementalRebalance) Rebalance(ctx context.Context, ledger *portfolio.Ledger, ids []string, q quarter.Quarter) error {
	held := ledger.HoldingIDs()
	leaving := difference(held, ids)
	entering := difference(ids, held)

	if err := ledger.SellStocks(ctx, leaving, q); err != nil {
		return err
	}

	if len(entering) > 0 {
		if ledger.Cash() > 0 {
			if err := p.buyer.Buy(ctx, ledger, entering, q); err != nil {
				return err
			}
		} else if p.logger != nil {
			p.logger.WithFields(map[string]interface{}{
				"quarter":  q.String(),
				"entering": len(entering),
			}).Warn("No cash freed, entrants not bought")
		}
	}

	equity, err := ledger.Equity(ctx, q)
	if err != nil {
		return err
	}
	return ledger.RecordAssets(q, equity)
}

// difference returns the elements of a not in b, in a's order
func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := set[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func without(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
