package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/evquant/internal/api"
	"github.com/wonny/evquant/internal/api/handlers"
	"github.com/wonny/evquant/internal/backtest"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server over the stored fundamentals and prices.

Endpoints:
  GET  /health                    - Health check
  GET  /api/rankings/{quarter}    - Top stocks of a quarter
  POST /api/backtests             - Run a backtest (JSON config)
  POST /api/backtests/chart       - Run a backtest, return the equity curve PNG

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== evquant API Server ===")

	d, err := connect(context.Background())
	if err != nil {
		return err
	}
	defer d.Close()

	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	d.log.WithFields(map[string]interface{}{
		"port":        d.cfg.Port,
		"env":         d.cfg.Env,
		"price_cache": d.cfg.PriceCache,
	}).Info("Initializing API server")

	fundamentals := d.repo.Fundamentals()
	prices := d.repo.Prices()

	rankingHandler := handlers.NewRankingHandler(fundamentals, prices, d.cache, d.log)
	backtestHandler := handlers.NewBacktestHandler(backtest.NewEngine(fundamentals, prices, d.cache, d.log), d.log)

	router := api.NewRouter(rankingHandler, backtestHandler, d.log)
	server := api.New(d.cfg, d.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/rankings/{quarter}")
	fmt.Println("  POST /api/backtests")
	fmt.Println("  POST /api/backtests/chart")
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	d.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	d.log.Info("Server stopped")
	return nil
}
