package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/evquant/internal/pricing"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/selection"
)

// rankCmd represents the rank command
var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Show the EV/EBITDA ranking of a quarter",
	Long: `Ranks every stock that reported in the quarter by EBITDA*100/EV (cheapest first)
and prints the top of the list.

Example:
  go run ./cmd/quant rank --quarter 20201
  go run ./cmd/quant rank --quarter 20201 --top 10 --stocks 1101,2330,2412`,
	RunE: runRank,
}

var (
	rankQuarter   string
	rankTop       int
	rankStocks    string
	rankOnMissing string
)

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().StringVar(&rankQuarter, "quarter", "", "quarter to rank (YYYYQ)")
	rankCmd.Flags().IntVar(&rankTop, "top", selection.DefaultTopN, "number of stocks to show")
	rankCmd.Flags().StringVar(&rankStocks, "stocks", "", "comma separated universe (default: every reporting stock)")
	rankCmd.Flags().StringVar(&rankOnMissing, "on-missing-fundamentals", string(selection.MissingSkip), "missing report handling (skip|abort)")
	_ = rankCmd.MarkFlagRequired("quarter")
}

func runRank(cmd *cobra.Command, args []string) error {
	q, err := quarter.Parse(rankQuarter)
	if err != nil {
		return err
	}
	if rankTop <= 0 {
		return fmt.Errorf("--top must be positive")
	}
	onMissing := selection.MissingPolicy(rankOnMissing)
	if !onMissing.Valid() {
		return fmt.Errorf("--on-missing-fundamentals must be skip or abort")
	}

	ctx := context.Background()
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	resolver := pricing.NewResolver(d.repo.Prices(), d.cache, d.log)
	ranker := selection.NewRanker(d.repo.Fundamentals(), resolver, rankTop, onMissing, d.log)

	ranking, err := ranker.Rank(ctx, q, parseStocks(rankStocks))
	if err != nil {
		return fmt.Errorf("rank %s: %w", q, err)
	}

	fmt.Printf("=== EV/EBITDA Ranking %s ===\n", q)
	fmt.Printf("Ranked: %d | Excluded: %d\n\n", len(ranking.Stocks), ranking.Excluded)

	widths := []int{4, 8, 10, 18, 18, 10}
	PrintTableHeader([]string{"#", "Stock", "Price", "EV", "EBITDA", "Ratio"}, widths)
	for _, s := range ranking.Stocks {
		PrintTableRow([]string{
			strconv.Itoa(s.Rank),
			s.StockID,
			fmt.Sprintf("%.2f", s.Price),
			fmt.Sprintf("%.0f", s.EV),
			fmt.Sprintf("%.0f", s.EBITDA),
			fmt.Sprintf("%.4f", s.Ratio),
		}, widths)
	}
	return nil
}
