package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/evquant/internal/api/handlers"
	"github.com/wonny/evquant/internal/backtest"
	"github.com/wonny/evquant/internal/s0_data"
	"github.com/wonny/evquant/pkg/logger"
)

func testRouter() http.Handler {
	fundamentals := s0_data.NewMemoryFundamentals()
	prices := s0_data.NewMemoryPrices()
	return NewRouter(
		handlers.NewRankingHandler(fundamentals, prices, nil, logger.Nop()),
		handlers.NewBacktestHandler(backtest.NewEngine(fundamentals, prices, nil, logger.Nop()), logger.Nop()),
		logger.Nop(),
	)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"evquant-api"}`, rec.Body.String())
}

func TestRoutes(t *testing.T) {
	router := testRouter()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/api/rankings/20201", http.StatusOK},
		{"GET", "/api/rankings/2020", http.StatusNotFound},
		{"POST", "/api/rankings/20201", http.StatusMethodNotAllowed},
		{"GET", "/api/backtests", http.StatusMethodNotAllowed},
		{"GET", "/api/backtests/chart", http.StatusMethodNotAllowed},
		{"GET", "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
