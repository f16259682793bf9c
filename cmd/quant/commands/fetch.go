package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/evquant/internal/s0_data/collector"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Collect fundamentals, daily prices and branch trading",
	Long: `Collects quarterly reports (StatementDog), daily candles and broker branch trading (CMoney)
into the database.

Reports already stored are never overwritten. Prices and chips resume after the latest stored day.
Chips need CMONEY_ACCOUNT and CMONEY_HASHED_PASSWORD.

Example:
  go run ./cmd/quant fetch fundamentals --stocks 1101,2330 --since-year 2015
  go run ./cmd/quant fetch prices --stocks 1101,2330 --since 2015-01-01
  go run ./cmd/quant fetch chips --stocks 2330 --chip-since 2021-01-01
  go run ./cmd/quant fetch all --stocks 1101,2330`,
}

var fetchFundamentalsCmd = &cobra.Command{
	Use:   "fundamentals",
	Short: "Collect quarterly reports",
	RunE:  runFetchFundamentals,
}

var fetchPricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Collect daily candles",
	RunE:  runFetchPrices,
}

var fetchChipsCmd = &cobra.Command{
	Use:   "chips",
	Short: "Collect daily broker branch trading",
	RunE:  runFetchChips,
}

var fetchAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every collection concurrently",
	RunE:  runFetchAll,
}

var (
	fetchChipSince string
	fetchStocks    string
	fetchSinceYear int
	fetchUntilYear int
	fetchSince     string
	fetchWorkers   int
)

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.AddCommand(fetchFundamentalsCmd)
	fetchCmd.AddCommand(fetchPricesCmd)
	fetchCmd.AddCommand(fetchChipsCmd)
	fetchCmd.AddCommand(fetchAllCmd)

	fetchCmd.PersistentFlags().StringVar(&fetchStocks, "stocks", "", "comma separated stock ids (default: every stock with a stored report)")
	fetchCmd.PersistentFlags().IntVar(&fetchWorkers, "workers", 0, "concurrent workers (default FETCH_WORKERS)")

	fetchFundamentalsCmd.Flags().IntVar(&fetchSinceYear, "since-year", 2015, "first fiscal year")
	fetchFundamentalsCmd.Flags().IntVar(&fetchUntilYear, "until-year", time.Now().Year(), "last fiscal year")

	fetchPricesCmd.Flags().StringVar(&fetchSince, "since", "2015-01-01", "first date for stocks with no stored candles (YYYY-MM-DD)")

	fetchChipsCmd.Flags().StringVar(&fetchChipSince, "chip-since", "", "first date for stocks with no stored chips (YYYY-MM-DD, default six months ago)")

	fetchAllCmd.Flags().IntVar(&fetchSinceYear, "since-year", 2015, "first fiscal year")
	fetchAllCmd.Flags().IntVar(&fetchUntilYear, "until-year", time.Now().Year(), "last fiscal year")
	fetchAllCmd.Flags().StringVar(&fetchSince, "since", "2015-01-01", "first date for stocks with no stored candles (YYYY-MM-DD)")
	fetchAllCmd.Flags().StringVar(&fetchChipSince, "chip-since", "", "first date for stocks with no stored chips (YYYY-MM-DD, default six months ago)")
}

func runFetchFundamentals(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	ids, err := d.universe(parseStocks(fetchStocks))(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== evquant Fetch: fundamentals ===")
	fmt.Printf("Stocks: %d | Years: %d ~ %d\n\n", len(ids), fetchSinceYear, fetchUntilYear)

	start := time.Now()
	results, err := d.newCollector().FetchAllFundamentals(ctx, ids, fetchSinceYear, fetchUntilYear, fetchConfig(d))
	if err != nil {
		return err
	}
	return printFetchResults(results, time.Since(start))
}

func runFetchPrices(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	since, err := time.ParseInLocation("2006-01-02", fetchSince, d.cfg.Location())
	if err != nil {
		return fmt.Errorf("--since: %w", err)
	}

	ids, err := d.universe(parseStocks(fetchStocks))(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== evquant Fetch: prices ===")
	fmt.Printf("Stocks: %d | Since: %s\n\n", len(ids), since.Format("2006-01-02"))

	start := time.Now()
	results, err := d.newCollector().FetchAllPrices(ctx, ids, since, time.Time{}, fetchConfig(d))
	if err != nil {
		return err
	}
	return printFetchResults(results, time.Since(start))
}

func runFetchChips(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if !d.chipsEnabled() {
		return fmt.Errorf("chips need CMONEY_ACCOUNT and CMONEY_HASHED_PASSWORD")
	}
	since, err := d.chipSince(fetchChipSince)
	if err != nil {
		return fmt.Errorf("--chip-since: %w", err)
	}

	ids, err := d.universe(parseStocks(fetchStocks))(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== evquant Fetch: chips ===")
	fmt.Printf("Stocks: %d | Since: %s\n\n", len(ids), since.Format("2006-01-02"))

	start := time.Now()
	results, err := d.newCollector().FetchAllChips(ctx, ids, since, time.Time{}, fetchConfig(d))
	if err != nil {
		return err
	}
	return printFetchResults(results, time.Since(start))
}

func runFetchAll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	priceSince, err := time.ParseInLocation("2006-01-02", fetchSince, d.cfg.Location())
	if err != nil {
		return fmt.Errorf("--since: %w", err)
	}
	chipSince, err := d.chipSince(fetchChipSince)
	if err != nil {
		return fmt.Errorf("--chip-since: %w", err)
	}

	ids, err := d.universe(parseStocks(fetchStocks))(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== evquant Fetch: all ===")
	fmt.Printf("Stocks: %d | Years: %d ~ %d | Prices since: %s\n", len(ids), fetchSinceYear, fetchUntilYear, priceSince.Format("2006-01-02"))
	if !d.chipsEnabled() {
		PrintWarning("CMONEY_ACCOUNT not set: skipping chips")
	}
	fmt.Println()

	start := time.Now()
	results, fetchErr := d.newCollector().FetchAll(ctx, ids, collector.Plan{
		SinceYear:  fetchSinceYear,
		UntilYear:  fetchUntilYear,
		PriceSince: priceSince,
		ChipSince:  chipSince,
	}, fetchConfig(d))

	sections := []struct {
		name    string
		results []collector.FetchResult
	}{
		{"Fundamentals", results.Fundamentals},
		{"Prices", results.Prices},
		{"Chips", results.Chips},
	}
	for _, sec := range sections {
		if sec.results == nil {
			continue
		}
		fmt.Printf("--- %s ---\n", sec.name)
		_ = printFetchResults(sec.results, time.Since(start))
		fmt.Println()
	}
	return fetchErr
}

func fetchConfig(d *deps) collector.Config {
	cfg := d.collectorConfig()
	if fetchWorkers > 0 {
		cfg.Workers = fetchWorkers
	}
	return cfg
}

func printFetchResults(results []collector.FetchResult, elapsed time.Duration) error {
	sort.Slice(results, func(i, j int) bool { return results[i].StockID < results[j].StockID })

	widths := []int{8, 8, 9, 40}
	PrintTableHeader([]string{"Stock", "Fetched", "Inserted", "Error"}, widths)
	for _, r := range results {
		errText := ""
		if r.Error != nil {
			errText = r.Error.Error()
		}
		PrintTableRow([]string{r.StockID, strconv.Itoa(r.Fetched), strconv.Itoa(r.Inserted), errText}, widths)
	}

	s := collector.Summarize(results)
	fmt.Println()
	if s.Failed > 0 {
		PrintWarning(fmt.Sprintf("%d of %d stocks failed (%.1fs)", s.Failed, len(results), elapsed.Seconds()))
		return fmt.Errorf("%d stocks failed", s.Failed)
	}
	PrintSuccess(fmt.Sprintf("%d stocks, %d fetched, %d inserted (%.1fs)", s.Success, s.Fetched, s.Inserted, elapsed.Seconds()))
	return nil
}
