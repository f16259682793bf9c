package report

import (
	"fmt"
	"io"

	"github.com/wonny/evquant/internal/backtest"
)

// WriteSummary prints the run configuration, metrics and asset history
func WriteSummary(w io.Writer, result *backtest.Result) error {
	cfg := result.Config
	p := &printer{w: w}

	p.line("=== Backtest ===")
	p.line("%-18s %s .. %s (%d quarters)", "Period:", cfg.Start, cfg.End, result.Quarters)
	p.line("%-18s %s", "Policy:", cfg.Policy)
	p.line("%-18s %d", "Top N:", cfg.TopN)
	if cfg.ExitDelayDays > 0 {
		p.line("%-18s %d days", "Exit delay:", cfg.ExitDelayDays)
	}
	p.line("")

	p.line("=== Performance ===")
	p.line("%-18s %12.4f", "Initial capital:", result.InitialCapital)
	p.line("%-18s %12.4f", "Final capital:", result.FinalCapital)
	p.line("%-18s %12.4f", "History profit:", result.HistoryProfit)
	p.line("%-18s %11.2f%%", "Total return:", result.TotalReturn*100)
	p.line("%-18s %11.2f%%", "CAGR:", result.CAGR*100)
	p.line("%-18s %11.2f%%", "Max drawdown:", result.MaxDrawdown*100)
	p.line("")

	r := result.Risk
	p.line("=== Risk (quarterly) ===")
	p.line("%-18s %11.2f%%", "Mean return:", r.MeanReturn*100)
	p.line("%-18s %11.2f%%", "Volatility:", r.Volatility*100)
	p.line("%-18s %12.4f", "Sharpe:", r.Sharpe)
	p.line("%-18s %11.2f%%", fmt.Sprintf("VaR %.0f%%:", r.VaR.Confidence*100), r.VaR.VaR*100)
	p.line("%-18s %11.2f%%", "CVaR:", r.VaR.CVaR*100)
	if r.Best != nil && r.Worst != nil {
		p.line("%-18s %s (%.2f%%)", "Best quarter:", r.Best.Quarter, r.Best.Return*100)
		p.line("%-18s %s (%.2f%%)", "Worst quarter:", r.Worst.Quarter, r.Worst.Return*100)
	}
	p.line("")

	p.line("=== Trades ===")
	p.line("%-18s %12d", "Total:", result.TotalTrades)
	p.line("%-18s %12d", "Winning:", result.WinningTrades)
	p.line("%-18s %12d", "Losing:", result.LosingTrades)
	p.line("%-18s %12d", "Unknown exit:", result.UnknownTrades)
	if result.WinRate != nil {
		p.line("%-18s %11.2f%%", "Win rate:", *result.WinRate*100)
	} else {
		p.line("%-18s %12s", "Win rate:", "n/a")
	}
	if len(result.Skipped) > 0 {
		p.line("%-18s %12d", "Skipped buys:", len(result.Skipped))
	}
	p.line("")

	p.line("=== Assets ===")
	for _, a := range result.Assets {
		p.line("%-18s %12.4f", a.Quarter.String(), a.Assets)
	}

	return p.err
}

// printer keeps the first write error
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}
