package risk

import (
	"math"
	"sort"
)

// =============================================================================
// VaR (Value at Risk) Calculation
// =============================================================================

// VaRResult holds historical VaR and expected shortfall, losses as positive fractions
type VaRResult struct {
	Confidence float64 `json:"confidence"` // e.g. 0.95
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"` // mean loss of the tail at or below VaR
}

// CalculateVaR computes VaR by historical simulation.
// returns are per-period fractions (positive = gain).
func CalculateVaR(returns []float64, confidence float64) VaRResult {
	if len(returns) == 0 {
		return VaRResult{Confidence: confidence}
	}

	// ascending: losses first
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1.0 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return VaRResult{
		Confidence: confidence,
		VaR:        asLoss(sorted[idx]),
		CVaR:       asLoss(Mean(sorted[:idx+1])),
	}
}

func asLoss(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}

// Mean returns the arithmetic mean
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
