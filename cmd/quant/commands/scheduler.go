package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/evquant/internal/scheduler"
	"github.com/wonny/evquant/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduled data refresh",
	Long: `Starts the refresh scheduler or manages its jobs.

Subcommands:
  start   - run the scheduler until interrupted
  list    - list registered jobs and their next run
  run     - run one job now
  status  - show stored data counts and next runs

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run price_collection`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler with every refresh job registered.

Registered jobs (PRICE_TIMEZONE):
- fundamentals_collection: every day at 18:00 (current and previous year)
- price_collection: weekdays at 15:30 (candles since the latest stored one)
- quarter_price_settlement: every day at 19:00 (latest settled quarter price cache)
- chip_collection: Tuesday to Saturday at 07:00 (branch trading up to yesterday, needs CMONEY_ACCOUNT)

Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show stored data counts and next runs",
		RunE:  showStatus,
	}
)

var (
	schedulerStocks     string
	schedulerPriceSince string
	schedulerChipSince  string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerCmd.PersistentFlags().StringVar(&schedulerStocks, "stocks", "", "comma separated stock ids (default: every stock with a stored report)")
	schedulerCmd.PersistentFlags().StringVar(&schedulerPriceSince, "price-since", "2015-01-01", "first candle date for stocks with none stored (YYYY-MM-DD)")
	schedulerCmd.PersistentFlags().StringVar(&schedulerChipSince, "chip-since", "", "first chip date for stocks with none stored (YYYY-MM-DD, default six months ago)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== evquant Scheduler ===")

	d, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	fmt.Printf("Running job: %s\n", jobName)

	result, err := sched.RunJob(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %s: %s", jobName, result.Duration.Round(time.Millisecond), result.Error)
	}

	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

// showStatus prints the row counts the jobs maintain and when each job runs next
func showStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	d, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer d.Close()

	status, err := d.repo.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Data Status:")
	PrintKeyValue("Fundamentals", fmt.Sprintf("%d reports (%d stocks)", status.Fundamentals, status.Stocks), 14)
	PrintKeyValue("Daily prices", fmt.Sprintf("%d candles", status.DailyPrices), 14)
	PrintKeyValue("Quarter prices", fmt.Sprintf("%d cached", status.QuarterPrices), 14)
	PrintKeyValue("Chips", fmt.Sprintf("%d branch records", status.Chips), 14)
	PrintKeyValue("Price cache", d.cfg.PriceCache, 14)
	fmt.Println()

	printJobs(sched)
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	widths := []int{28, 22, 20}
	PrintTableHeader([]string{"Job", "Schedule", "Next Run"}, widths)
	stats := sched.GetJobStats()
	for _, jobName := range sched.GetAllJobs() {
		next := "-"
		if t, err := sched.NextRun(jobName); err == nil && !t.IsZero() {
			next = t.Format("2006-01-02 15:04")
		}
		PrintTableRow([]string{jobName, stats[jobName].Schedule, next}, widths)
	}
}

func initScheduler(ctx context.Context) (*deps, *scheduler.Scheduler, error) {
	d, err := connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	since, err := time.ParseInLocation("2006-01-02", schedulerPriceSince, d.cfg.Location())
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("--price-since: %w", err)
	}

	col := d.newCollector()
	universe := d.universe(parseStocks(schedulerStocks))
	colCfg := d.collectorConfig()

	sched := scheduler.New(d.log, d.cfg.Location(), scheduler.WithRetry(2, time.Minute))

	registered := []scheduler.Job{
		jobs.NewFundamentalsJob(col, universe, colCfg, d.log),
		jobs.NewPriceCollectionJob(col, universe, since, colCfg, d.log),
		jobs.NewQuarterPriceJob(d.repo.Fundamentals(), d.repo.Prices(), d.cache, d.log),
	}
	if d.chipsEnabled() {
		chipSince, err := d.chipSince(schedulerChipSince)
		if err != nil {
			d.Close()
			return nil, nil, fmt.Errorf("--chip-since: %w", err)
		}
		registered = append(registered, jobs.NewChipCollectionJob(col, universe, chipSince, colCfg, d.log))
	}
	for _, job := range registered {
		if err := sched.AddJob(job); err != nil {
			d.Close()
			return nil, nil, fmt.Errorf("register %s: %w", job.Name(), err)
		}
	}

	return d, sched, nil
}
