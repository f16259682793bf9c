package risk

import (
	"math"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/pkg/mathutil"
)

// DefaultConfidence is the VaR confidence level used for backtest reports
const DefaultConfidence = 0.95

// QuarterReturn is the asset change of one quarter
type QuarterReturn struct {
	Quarter quarter.Quarter `json:"quarter"`
	Return  float64         `json:"return"`
}

// Report summarises the quarter-to-quarter risk of an equity curve
// ⭐ SSOT: risk figures of a backtest are computed here only
type Report struct {
	Periods    int            `json:"periods"`
	MeanReturn float64        `json:"mean_return"`
	Volatility float64        `json:"volatility"`            // stddev of quarterly returns
	Annualized float64        `json:"annualized_volatility"` // volatility * sqrt(4)
	Sharpe     float64        `json:"sharpe"`                // mean / volatility, annualized, zero rate
	VaR        VaRResult      `json:"var"`
	Best       *QuarterReturn `json:"best,omitempty"`
	Worst      *QuarterReturn `json:"worst,omitempty"`
}

// QuarterlyReturns converts an equity curve into per-quarter returns.
// The first point is measured against initial. Points after a non-positive base are skipped.
func QuarterlyReturns(initial float64, curve []contracts.AssetSnapshot) []QuarterReturn {
	returns := make([]QuarterReturn, 0, len(curve))
	prev := initial
	for _, point := range curve {
		if prev > 0 {
			returns = append(returns, QuarterReturn{
				Quarter: point.Quarter,
				Return:  (point.Assets - prev) / prev,
			})
		}
		prev = point.Assets
	}
	return returns
}

// Analyze builds the risk report of an equity curve
func Analyze(initial float64, curve []contracts.AssetSnapshot, confidence float64) Report {
	qr := QuarterlyReturns(initial, curve)
	report := Report{Periods: len(qr), VaR: VaRResult{Confidence: confidence}}
	if len(qr) == 0 {
		return report
	}

	values := make([]float64, len(qr))
	best, worst := qr[0], qr[0]
	for i, r := range qr {
		values[i] = r.Return
		if r.Return > best.Return {
			best = r
		}
		if r.Return < worst.Return {
			worst = r
		}
	}
	best.Return = mathutil.Round4(best.Return)
	worst.Return = mathutil.Round4(worst.Return)

	mean := Mean(values)
	vol := StdDev(values)
	v := CalculateVaR(values, confidence)

	report.MeanReturn = mathutil.Round4(mean)
	report.Volatility = mathutil.Round4(vol)
	report.Annualized = mathutil.Round4(vol * 2)
	if vol > 0 {
		report.Sharpe = mathutil.Round4(mean / vol * math.Sqrt(4))
	}
	report.VaR = VaRResult{
		Confidence: confidence,
		VaR:        mathutil.Round4(v.VaR),
		CVaR:       mathutil.Round4(v.CVaR),
	}
	report.Best = &best
	report.Worst = &worst
	return report
}
