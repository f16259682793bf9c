package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/wonny/evquant/internal/chips"
)

var branchPalette = []string{
	"2563eb", "dc2626", "16a34a", "d97706", "7c3aed",
	"0891b2", "db2777", "65a30d", "ea580c", "4f46e5",
}

// WriteBigTraders prints the big trader table of an analysis, largest net buyer first
func WriteBigTraders(w io.Writer, a *chips.Analysis) error {
	if len(a.Dates) == 0 {
		return fmt.Errorf("analysis of %s has no trading days", a.StockID)
	}
	p := &printer{w: w}

	p.line("=== Big Traders %s ===", a.StockID)
	p.line("%-18s %s .. %s (%d days)", "Window:",
		a.Dates[0].Format("2006-01-02"), a.LastDay().Format("2006-01-02"), len(a.Dates))
	p.line("%-18s %d lots", "Threshold:", a.Threshold)
	if len(a.Prices) > 0 {
		p.line("%-18s %.2f", "Last close:", a.Prices[len(a.Prices)-1].Close)
	}
	p.line("")

	if len(a.Branches) == 0 {
		p.line("No branch above the threshold")
		return p.err
	}
	p.line("%-8s %-20s %12s", "Branch", "Name", "Net lots")
	for _, b := range a.Branches {
		p.line("%-8s %-20s %12d", b.BranchID, b.BranchName, b.Final())
	}
	return p.err
}

// RenderBigTraderChart plots each big trader's running net lots on the left axis
// and the daily close in black on the right axis.
func RenderBigTraderChart(a *chips.Analysis) ([]byte, error) {
	if len(a.Dates) < 2 {
		return nil, fmt.Errorf("need at least 2 trading days, got %d", len(a.Dates))
	}

	series := make([]chart.Series, 0, len(a.Branches)+1)
	for i, b := range a.Branches {
		y := make([]float64, len(b.Cumulative))
		for j, v := range b.Cumulative {
			y[j] = float64(v)
		}
		name := b.BranchName
		if name == "" {
			name = b.BranchID
		}
		series = append(series, chart.TimeSeries{
			Name: name,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(branchPalette[i%len(branchPalette)]),
				StrokeWidth: 2.5,
			},
			XValues: a.Dates,
			YValues: y,
		})
	}

	// at least one primary series keeps the left axis drawable
	if len(a.Branches) == 0 {
		series = append(series, chart.TimeSeries{
			Name: "No big traders",
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"),
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: []time.Time{a.Dates[0], a.LastDay()},
			YValues: []float64{0, 0},
		})
	}

	if len(a.Prices) >= 2 {
		priceX := make([]time.Time, len(a.Prices))
		priceY := make([]float64, len(a.Prices))
		for i, p := range a.Prices {
			priceX[i] = p.Date
			priceY[i] = p.Close
		}
		series = append(series, chart.TimeSeries{
			Name:    "Price",
			YAxis:   chart.YAxisSecondary,
			Style:   chart.Style{StrokeColor: drawing.ColorBlack, StrokeWidth: 1.5},
			XValues: priceX,
			YValues: priceY,
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s (TH: %d), %s", a.StockID, a.Threshold, a.LastDay().Format("2006-01-02")),
		Width:  1000,
		Height: 500,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 180, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("01-02")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			Name: "count",
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "price",
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.1f", f)
				}
				return ""
			},
		},
		Series: series,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
