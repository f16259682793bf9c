package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/evquant/internal/backtest"
	"github.com/wonny/evquant/internal/report"
	"github.com/wonny/evquant/internal/strategyconfig"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Quarterly rebalancing backtests",
}

var backtestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an EV/EBITDA rebalancing backtest",
	Long: `Runs the quarterly EV/EBITDA backtest over stored fundamentals and prices.

A strategy file sets the run; any flag given on the command line overrides it.
Without a file the built-in defaults are used (20161..20211, capital 3000, top 30).

Example:
  go run ./cmd/quant backtest run --config config/strategy/ev_ebitda_quarterly.yaml
  go run ./cmd/quant backtest run --from 20161 --to 20211 --policy incremental
  go run ./cmd/quant backtest run --stocks 1101,2330,2412 --top 2 --chart equity.png`,
	RunE: runBacktest,
}

var (
	backtestConfigFile     string
	backtestFrom           string
	backtestTo             string
	backtestCapital        float64
	backtestTop            int
	backtestPolicy         string
	backtestExitDelay      int
	backtestOnMissingPrice string
	backtestOnMissingFund  string
	backtestStocks         string
	backtestChart          string
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	f := backtestRunCmd.Flags()
	f.StringVar(&backtestConfigFile, "config", "", "strategy YAML file")
	f.StringVar(&backtestFrom, "from", "", "first quarter (YYYYQ)")
	f.StringVar(&backtestTo, "to", "", "liquidation quarter (YYYYQ, exclusive)")
	f.Float64Var(&backtestCapital, "capital", 0, "initial capital")
	f.IntVar(&backtestTop, "top", 0, "stocks held per quarter")
	f.StringVar(&backtestPolicy, "policy", "", "rebalance policy (full|incremental)")
	f.IntVar(&backtestExitDelay, "exit-delay", 0, "days after the earnings deadline to price exits (full: every quarterly exit, incremental: final liquidation only)")
	f.StringVar(&backtestOnMissingPrice, "on-missing-price", "", "missing buy price handling (skip|abort)")
	f.StringVar(&backtestOnMissingFund, "on-missing-fundamentals", "", "missing report handling (skip|abort)")
	f.StringVar(&backtestStocks, "stocks", "", "comma separated universe (default: every reporting stock)")
	f.StringVar(&backtestChart, "chart", "", "write the equity curve PNG here")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	strategy, yamlData, err := loadStrategy(cmd)
	if err != nil {
		return err
	}

	btCfg, err := strategy.Backtest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	for _, w := range strategyconfig.Warn(strategy) {
		d.log.WithField("code", w.Code).Warn(w.Message)
	}

	if snapshot, err := strategyconfig.NewRunSnapshot(strategy, yamlData); err == nil {
		d.log.WithFields(map[string]interface{}{
			"strategy": snapshot.StrategyID,
			"hash":     snapshot.ConfigHash[:12],
		}).Info("Strategy loaded")
	}

	fmt.Println("=== evquant Backtest ===")
	fmt.Printf("Period: %s ~ %s | Capital: %.0f | Top: %d | Policy: %s\n\n",
		btCfg.Start, btCfg.End, btCfg.InitialCapital, btCfg.TopN, btCfg.Policy)

	engine := backtest.NewEngine(d.repo.Fundamentals(), d.repo.Prices(), d.cache, d.log)
	result, err := engine.Run(ctx, btCfg)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if err := report.WriteSummary(os.Stdout, result); err != nil {
		return err
	}

	chartPath := strategy.Report.ChartPath
	if chartPath == "" {
		return nil
	}
	png, err := report.RenderEquityChart(result)
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if err := os.WriteFile(chartPath, png, 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	fmt.Printf("\n✅ Equity chart written to %s\n", chartPath)
	return nil
}

// loadStrategy reads the strategy file (or defaults) and applies flags the user set
func loadStrategy(cmd *cobra.Command) (*strategyconfig.Config, []byte, error) {
	strategy := strategyconfig.Default()
	var yamlData []byte
	if backtestConfigFile != "" {
		var err error
		strategy, yamlData, err = strategyconfig.Load(backtestConfigFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load strategy: %w", err)
		}
	}

	f := cmd.Flags()
	if f.Changed("from") {
		strategy.Period.Start = backtestFrom
	}
	if f.Changed("to") {
		strategy.Period.End = backtestTo
	}
	if f.Changed("capital") {
		strategy.Capital.Initial = backtestCapital
	}
	if f.Changed("top") {
		strategy.Ranking.TopN = backtestTop
	}
	if f.Changed("policy") {
		strategy.Portfolio.Policy = backtestPolicy
	}
	if f.Changed("exit-delay") {
		strategy.Portfolio.ExitDelayDays = backtestExitDelay
	}
	if f.Changed("on-missing-price") {
		strategy.Portfolio.OnMissingPrice = backtestOnMissingPrice
	}
	if f.Changed("on-missing-fundamentals") {
		strategy.Ranking.OnMissingFundamentals = backtestOnMissingFund
	}
	if f.Changed("stocks") {
		strategy.Universe.Stocks = parseStocks(backtestStocks)
	}
	if f.Changed("chart") {
		strategy.Report.ChartPath = backtestChart
	}

	if err := strategyconfig.Validate(strategy); err != nil {
		return nil, nil, err
	}
	return strategy, yamlData, nil
}
