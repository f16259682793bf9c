package backtest

import (
	"math"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/risk"
	"github.com/wonny/evquant/pkg/mathutil"
)

// calculateMetrics fills return, CAGR, drawdown and the risk report from capital and the asset history
func calculateMetrics(result *Result) {
	if result.InitialCapital <= 0 {
		return
	}

	result.TotalReturn = mathutil.Round4((result.FinalCapital - result.InitialCapital) / result.InitialCapital)

	// quarterly steps: four per year
	years := float64(result.Quarters) / 4
	result.CAGR = calculateCAGR(result.InitialCapital, result.FinalCapital, years)

	result.MaxDrawdown = calculateMaxDrawdown(result.InitialCapital, result.Assets)
	result.Risk = risk.Analyze(result.InitialCapital, result.Assets, risk.DefaultConfidence)
}

// calculateCAGR returns the compound annual growth rate, 4 dp
func calculateCAGR(initial, final, years float64) float64 {
	if years <= 0 || initial <= 0 || final <= 0 {
		return 0
	}
	return mathutil.Round4(math.Pow(final/initial, 1.0/years) - 1.0)
}

// calculateMaxDrawdown returns the largest peak-to-trough fall of the asset history, starting from initial
func calculateMaxDrawdown(initial float64, curve []contracts.AssetSnapshot) float64 {
	maxDrawdown := 0.0
	peak := initial

	for _, point := range curve {
		if point.Assets > peak {
			peak = point.Assets
		}

		if peak <= 0 {
			continue
		}
		drawdown := (peak - point.Assets) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return mathutil.Round4(maxDrawdown)
}
