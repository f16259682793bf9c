package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wonny/evquant/internal/chips"
	"github.com/wonny/evquant/internal/report"
)

// chipsCmd represents the chips command
var chipsCmd = &cobra.Command{
	Use:   "chips",
	Short: "Big trader analysis of broker branch trading",
	Long: `Accumulates the daily net lots of every broker branch over the stored chips and lists
the branches whose running total ends beyond the stock's threshold (default 100 lots).

Example:
  go run ./cmd/quant chips analyze --stocks 2330 --chart png
  go run ./cmd/quant chips analyze --stocks 2330,2412 --threshold 300 --months 3
  go run ./cmd/quant chips threshold --stocks 2330 --lots 500`,
}

var chipsAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "List the branches accumulating or unloading each stock",
	RunE:  runChipsAnalyze,
}

var chipsThresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Store the big trader threshold of stocks",
	RunE:  runChipsThreshold,
}

var (
	chipsStocks    string
	chipsThreshold int64
	chipsMonths    int
	chipsChartDir  string
	chipsLots      int64
)

func init() {
	rootCmd.AddCommand(chipsCmd)
	chipsCmd.AddCommand(chipsAnalyzeCmd)
	chipsCmd.AddCommand(chipsThresholdCmd)

	chipsCmd.PersistentFlags().StringVar(&chipsStocks, "stocks", "", "comma separated stock ids")
	_ = chipsCmd.MarkPersistentFlagRequired("stocks")

	chipsAnalyzeCmd.Flags().Int64Var(&chipsThreshold, "threshold", 0, "big trader threshold in lots (default: stored, else 100)")
	chipsAnalyzeCmd.Flags().IntVar(&chipsMonths, "months", chips.DefaultLookbackMonths, "window ending at the latest stored day")
	chipsAnalyzeCmd.Flags().StringVar(&chipsChartDir, "chart", "", "write {stock}_{last day}.png charts into this directory")

	chipsThresholdCmd.Flags().Int64Var(&chipsLots, "lots", chips.DefaultThreshold, "threshold in lots")
}

func runChipsAnalyze(cmd *cobra.Command, args []string) error {
	if chipsMonths <= 0 {
		return fmt.Errorf("--months must be positive")
	}

	ctx := context.Background()
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	store := d.repo.Chips()
	analyzer := chips.NewAnalyzer(store, d.repo.Prices(), d.log)

	if chipsChartDir != "" {
		if err := os.MkdirAll(chipsChartDir, 0o755); err != nil {
			return fmt.Errorf("create chart dir: %w", err)
		}
	}

	for _, id := range parseStocks(chipsStocks) {
		latest, found, err := store.LatestDate(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			PrintWarning(fmt.Sprintf("%s: no stored chips, run fetch chips first", id))
			continue
		}

		a, err := analyzer.Analyze(ctx, id, latest.AddDate(0, -chipsMonths, 0), latest, chipsThreshold)
		if err != nil {
			return err
		}
		if err := report.WriteBigTraders(os.Stdout, a); err != nil {
			return err
		}
		fmt.Println()

		if chipsChartDir == "" {
			continue
		}
		png, err := report.RenderBigTraderChart(a)
		if err != nil {
			PrintWarning(fmt.Sprintf("%s: %v", id, err))
			continue
		}
		path := filepath.Join(chipsChartDir, fmt.Sprintf("%s_%s.png", id, a.LastDay().Format("2006-01-02")))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		PrintSuccess(fmt.Sprintf("Chart written to %s", path))
	}
	return nil
}

func runChipsThreshold(cmd *cobra.Command, args []string) error {
	if chipsLots <= 0 {
		return fmt.Errorf("--lots must be positive")
	}

	ctx := context.Background()
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	for _, id := range parseStocks(chipsStocks) {
		if err := d.repo.Chips().SetThreshold(ctx, id, chipsLots); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("%s threshold set to %d lots", id, chipsLots))
	}
	return nil
}
