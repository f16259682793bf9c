package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "evquant - quarterly EV/EBITDA rebalancing backtester",
	Long: `evquant Unified CLI

Ranks stocks by EV/EBITDA every quarter, rebalances into the cheapest names
and reports the equity curve of the resulting portfolio.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest run --config config/strategy/ev_ebitda_quarterly.yaml
  go run ./cmd/quant rank --quarter 20201 --top 30
  go run ./cmd/quant fetch prices --stocks 1101,2330
  go run ./cmd/quant chips analyze --stocks 2330 --chart png
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
