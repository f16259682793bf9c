package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wonny/evquant/internal/backtest"
	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/report"
	"github.com/wonny/evquant/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Runner runs one backtest (backtest.Engine)
type Runner interface {
	Run(ctx context.Context, cfg backtest.Config) (*backtest.Result, error)
}

// BacktestHandler runs backtests on request
type BacktestHandler struct {
	runner Runner
	logger *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(runner Runner, log *logger.Logger) *BacktestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BacktestHandler{runner: runner, logger: log.Module("api")}
}

// Run executes a backtest and returns the full result
// POST /api/backtests  body: backtest.Config JSON, omitted fields take defaults
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, status, err := h.run(w, r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Chart executes a backtest and returns its equity curve
// POST /api/backtests/chart  body: backtest.Config JSON
func (h *BacktestHandler) Chart(w http.ResponseWriter, r *http.Request) {
	result, status, err := h.run(w, r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	png, err := report.RenderEquityChart(result)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *BacktestHandler) run(w http.ResponseWriter, r *http.Request) (*backtest.Result, int, error) {
	cfg := backtest.DefaultConfig()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid backtest config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, http.StatusBadRequest, err
	}

	result, err := h.runner.Run(r.Context(), cfg)
	if err != nil {
		var missingPrice *contracts.MissingPriceError
		var missingFundamentals *contracts.MissingFundamentalsError
		switch {
		case errors.As(err, &missingPrice), errors.As(err, &missingFundamentals):
			return nil, http.StatusUnprocessableEntity, err
		case errors.Is(err, context.Canceled):
			return nil, http.StatusRequestTimeout, err
		}

		h.logger.WithError(err).Error("Backtest failed")
		return nil, http.StatusInternalServerError, errors.New("backtest failed")
	}

	return result, http.StatusOK, nil
}
