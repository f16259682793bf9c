// Package chips finds the broker branches accumulating or unloading a stock.
package chips

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/pkg/logger"
)

// DefaultThreshold is the big trader cut-off in lots when a stock has none configured
const DefaultThreshold int64 = 100

// DefaultLookbackMonths is the analysis window ending at the latest stored day
const DefaultLookbackMonths = 6

// ErrNoChips is returned when a stock has no branch records in the window
var ErrNoChips = errors.New("no branch records: stock may not be collected yet")

// BranchSeries is the running net lots of one branch, aligned with Analysis.Dates
type BranchSeries struct {
	BranchID   string  `json:"branch_id"`
	BranchName string  `json:"branch_name"`
	Cumulative []int64 `json:"cumulative"`
}

// Final is the net position at the last day
func (b BranchSeries) Final() int64 {
	if len(b.Cumulative) == 0 {
		return 0
	}
	return b.Cumulative[len(b.Cumulative)-1]
}

// Analysis is the big trader view of one stock
type Analysis struct {
	StockID   string                  `json:"stock_id"`
	Threshold int64                   `json:"threshold"`
	Dates     []time.Time             `json:"dates"`
	Branches  []BranchSeries          `json:"branches"` // largest net buyer first
	Prices    []contracts.PriceRecord `json:"prices"`
}

// LastDay is the latest trading day covered, zero when empty
func (a *Analysis) LastDay() time.Time {
	if len(a.Dates) == 0 {
		return time.Time{}
	}
	return a.Dates[len(a.Dates)-1]
}

// BigTraders accumulates daily net lots per branch over the trading days present in records.
// A branch absent on a day adds nothing that day. Branches whose final |net| exceeds
// threshold are kept, sorted by final net descending (ties by branch id).
func BigTraders(records []contracts.ChipRecord, threshold int64) ([]time.Time, []BranchSeries) {
	if len(records) == 0 {
		return nil, nil
	}

	dayIndex := make(map[time.Time]int)
	var dates []time.Time
	for _, r := range records {
		d := contracts.Day(r.Date)
		if _, ok := dayIndex[d]; !ok {
			dayIndex[d] = 0
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for i, d := range dates {
		dayIndex[d] = i
	}

	daily := make(map[string][]int64)
	names := make(map[string]string)
	for _, r := range records {
		net, ok := daily[r.BranchID]
		if !ok {
			net = make([]int64, len(dates))
			daily[r.BranchID] = net
		}
		net[dayIndex[contracts.Day(r.Date)]] += r.NetLots()
		if r.BranchName != "" {
			names[r.BranchID] = r.BranchName
		}
	}

	var branches []BranchSeries
	for id, net := range daily {
		cumulative := make([]int64, len(net))
		var sum int64
		for i, v := range net {
			sum += v
			cumulative[i] = sum
		}
		if abs(sum) <= threshold {
			continue
		}
		branches = append(branches, BranchSeries{BranchID: id, BranchName: names[id], Cumulative: cumulative})
	}

	sort.Slice(branches, func(i, j int) bool {
		fi, fj := branches[i].Final(), branches[j].Final()
		if fi != fj {
			return fi > fj
		}
		return branches[i].BranchID < branches[j].BranchID
	})

	return dates, branches
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Analyzer loads branch records and closes for a stock and runs BigTraders
type Analyzer struct {
	chips  contracts.ChipRepository
	prices contracts.DailyPriceRepository
	logger *logger.Logger
}

// NewAnalyzer creates a new Analyzer
func NewAnalyzer(chips contracts.ChipRepository, prices contracts.DailyPriceRepository, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{
		chips:  chips,
		prices: prices,
		logger: log.Module("chips"),
	}
}

// ResolveThreshold returns override when positive, else the stored threshold, else DefaultThreshold
func (a *Analyzer) ResolveThreshold(ctx context.Context, stockID string, override int64) (int64, error) {
	if override > 0 {
		return override, nil
	}
	lots, found, err := a.chips.Threshold(ctx, stockID)
	if err != nil {
		return 0, fmt.Errorf("threshold %s: %w", stockID, err)
	}
	if found && lots > 0 {
		return lots, nil
	}
	return DefaultThreshold, nil
}

// Analyze runs the big trader analysis of stockID over from..to.
// threshold <= 0 uses the stored or default threshold.
func (a *Analyzer) Analyze(ctx context.Context, stockID string, from, to time.Time, threshold int64) (*Analysis, error) {
	threshold, err := a.ResolveThreshold(ctx, stockID, threshold)
	if err != nil {
		return nil, err
	}

	records, err := a.chips.Query(ctx, stockID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load chips %s: %w", stockID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", stockID, ErrNoChips)
	}

	prices, err := a.prices.Query(ctx, stockID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load prices %s: %w", stockID, err)
	}

	dates, branches := BigTraders(records, threshold)

	a.logger.WithFields(map[string]interface{}{
		"stock_id":  stockID,
		"threshold": threshold,
		"days":      len(dates),
		"branches":  len(branches),
	}).Debug("Analyzed big traders")

	return &Analysis{
		StockID:   stockID,
		Threshold: threshold,
		Dates:     dates,
		Branches:  branches,
		Prices:    prices,
	}, nil
}
