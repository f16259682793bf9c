// Package report renders backtest results and big trader analyses as PNG charts and text summaries.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/wonny/evquant/internal/backtest"
	"github.com/wonny/evquant/internal/quarter"
)

// RenderEquityChart renders the asset history as a PNG line chart.
// Two series: Assets (blue solid) and Initial Capital (gray dashed).
// Each point is plotted at the report deadline of its quarter.
func RenderEquityChart(result *backtest.Result) ([]byte, error) {
	points := result.Assets
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(points))
	}

	xValues := make([]time.Time, len(points))
	assetY := make([]float64, len(points))
	capitalY := make([]float64, len(points))

	for i, p := range points {
		xValues[i] = quarter.EarningsDeadline(p.Quarter)
		assetY[i] = p.Assets
		capitalY[i] = result.InitialCapital
	}

	assetSeries := chart.TimeSeries{
		Name: "Assets",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"),
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: assetY,
	}

	capitalSeries := chart.TimeSeries{
		Name: "Initial Capital",
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"),
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5.0, 3.0},
		},
		XValues: xValues,
		YValues: capitalY,
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("EV/EBITDA top %d, %s rebalance", result.Config.TopN, result.Config.Policy),
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			assetSeries,
			capitalSeries,
		},
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
