package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
)

func snapshots(values ...float64) []contracts.AssetSnapshot {
	q := quarter.MustParse("20191")
	out := make([]contracts.AssetSnapshot, len(values))
	for i, v := range values {
		out[i] = contracts.AssetSnapshot{Quarter: q, Assets: v}
		q = q.Next()
	}
	return out
}

func TestCalculateVaR(t *testing.T) {
	returns := []float64{0.05, -0.10, 0.02, -0.04, 0.08, 0.01, -0.02, 0.03, 0.04, -0.06,
		0.02, 0.01, 0.00, 0.03, -0.01, 0.05, 0.02, -0.03, 0.06, 0.01}

	v := CalculateVaR(returns, 0.95)
	// floor(0.05 * 20) = 1: the second worst return
	assert.InDelta(t, 0.06, v.VaR, 1e-9)
	assert.InDelta(t, 0.08, v.CVaR, 1e-9)
	assert.Equal(t, 0.95, v.Confidence)

	// input is not reordered
	assert.Equal(t, 0.05, returns[0])
}

func TestCalculateVaR_NoLoss(t *testing.T) {
	v := CalculateVaR([]float64{0.01, 0.02}, 0.95)
	assert.Zero(t, v.VaR)
	assert.Zero(t, v.CVaR)

	empty := CalculateVaR(nil, 0.99)
	assert.Equal(t, VaRResult{Confidence: 0.99}, empty)
}

func TestMeanStdDev(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
	assert.Zero(t, StdDev([]float64{1}))
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-12)
}

func TestQuarterlyReturns(t *testing.T) {
	qr := QuarterlyReturns(3000, snapshots(3000, 3150, 0, 100))
	require.Len(t, qr, 3)
	assert.Equal(t, "20191", qr[0].Quarter.String())
	assert.InDelta(t, 0.0, qr[0].Return, 1e-12)
	assert.InDelta(t, 0.05, qr[1].Return, 1e-12)
	assert.InDelta(t, -1.0, qr[2].Return, 1e-12)
}

func TestAnalyze(t *testing.T) {
	report := Analyze(3000, snapshots(3000, 3150, 3718.75), DefaultConfidence)

	assert.Equal(t, 3, report.Periods)
	require.NotNil(t, report.Best)
	require.NotNil(t, report.Worst)
	assert.Equal(t, "20193", report.Best.Quarter.String())
	assert.Equal(t, 0.1806, report.Best.Return)
	assert.Equal(t, "20191", report.Worst.Quarter.String())
	assert.Zero(t, report.Worst.Return)
	assert.Equal(t, 0.0769, report.MeanReturn)
	assert.Zero(t, report.VaR.VaR)
	assert.Greater(t, report.Sharpe, 0.0)
	assert.InDelta(t, 0.0932, report.Volatility, 1e-4)
	assert.InDelta(t, report.Volatility*2, report.Annualized, 1e-4)
}

func TestAnalyze_Empty(t *testing.T) {
	report := Analyze(3000, nil, DefaultConfidence)
	assert.Zero(t, report.Periods)
	assert.Nil(t, report.Best)
	assert.Equal(t, DefaultConfidence, report.VaR.Confidence)
}
