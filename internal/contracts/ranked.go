package contracts

import "github.com/wonny/evquant/internal/quarter"

// RankedStock is one entry of a quarter's top-N list
// ⭐ SSOT: S2/selection → backtest ranking result
type RankedStock struct {
	StockID string  `json:"stock_id"`
	Rank    int     `json:"rank"` // 1-based
	Ratio   float64 `json:"ratio"`
	EV      float64 `json:"ev"`
	EBITDA  float64 `json:"ebitda"`
	Price   float64 `json:"price"`
}

// QuarterRanking is the ordered top-N list of one quarter
type QuarterRanking struct {
	Quarter  quarter.Quarter `json:"quarter"`
	Stocks   []RankedStock   `json:"stocks"`
	Excluded int             `json:"excluded"` // evaluated but not eligible or missing data
}

// IDs returns the stock ids in rank order
func (r *QuarterRanking) IDs() []string {
	ids := make([]string, len(r.Stocks))
	for i, s := range r.Stocks {
		ids[i] = s.StockID
	}
	return ids
}
