package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/evquant/internal/backtest"
	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/s0_data"
	"github.com/wonny/evquant/pkg/logger"
)

// two quarters of data for A and B; B ranks first in both
func stores() (*s0_data.MemoryFundamentals, *s0_data.MemoryPrices) {
	var reports []contracts.StockFundamentals
	var candles []contracts.PriceRecord
	for _, q := range []string{"20191", "20192"} {
		qq := quarter.MustParse(q)
		day := quarter.EarningsDeadline(qq).AddDate(0, 0, 2)
		for id, op := range map[string]float64{"A": 10, "B": 30} {
			reports = append(reports, contracts.StockFundamentals{
				StockID: id, Quarter: qq, GrossProfit: 1, OperatingIncome: op,
				NetIncome: 1, ParentNetIncome: 1, CommonStock: 10,
			})
			candles = append(candles, contracts.PriceRecord{StockID: id, Date: day, Close: 20})
		}
	}
	return s0_data.NewMemoryFundamentals(reports...), s0_data.NewMemoryPrices(candles...)
}

func newRouter() *mux.Router {
	fundamentals, prices := stores()
	ranking := NewRankingHandler(fundamentals, prices, nil, logger.Nop())
	bt := NewBacktestHandler(backtest.NewEngine(fundamentals, prices, nil, logger.Nop()), logger.Nop())

	r := mux.NewRouter()
	r.HandleFunc("/api/rankings/{quarter}", ranking.GetRanking).Methods("GET")
	r.HandleFunc("/api/backtests", bt.Run).Methods("POST")
	r.HandleFunc("/api/backtests/chart", bt.Chart).Methods("POST")
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetRanking(t *testing.T) {
	rec := serve(newRouter(), "GET", "/api/rankings/20191?top=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ranking contracts.QuarterRanking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ranking))
	assert.Equal(t, quarter.MustParse("20191"), ranking.Quarter)
	require.Len(t, ranking.Stocks, 1)
	assert.Equal(t, "B", ranking.Stocks[0].StockID)
	assert.Equal(t, 1, ranking.Stocks[0].Rank)
}

func TestGetRanking_BadRequests(t *testing.T) {
	r := newRouter()

	tests := []struct {
		target string
		status int
	}{
		{"/api/rankings/20195", http.StatusBadRequest},
		{"/api/rankings/20191?top=0", http.StatusBadRequest},
		{"/api/rankings/20191?on_missing=retry", http.StatusBadRequest},
		{"/api/rankings/20191?stocks=A,ZZZ&on_missing=abort", http.StatusUnprocessableEntity},
		{"/api/rankings/20191?stocks=A,ZZZ", http.StatusOK},
	}

	for _, tt := range tests {
		rec := serve(r, "GET", tt.target, "")
		assert.Equal(t, tt.status, rec.Code, tt.target)
	}
}

func TestRunBacktest(t *testing.T) {
	body := `{"start":"20191","end":"20193","top_n":1,"initial_capital":1000}`
	rec := serve(newRouter(), "POST", "/api/backtests", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result backtest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Quarters)
	assert.Equal(t, backtest.PolicyFull, result.Config.Policy)
	assert.Equal(t, 1000.0, result.InitialCapital)
	require.Len(t, result.Rankings, 2)
	assert.Equal(t, []string{"B"}, result.Rankings[0].IDs())
}

func TestRunBacktest_BadConfig(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusBadRequest, serve(r, "POST", "/api/backtests", `{"start":"20191","end":"20191"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, "POST", "/api/backtests", `{"topn":3}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, "POST", "/api/backtests", `not json`).Code)
}

func TestRunBacktest_MissingData(t *testing.T) {
	body := `{"start":"20191","end":"20193","universe":["A","NOPE"],"on_missing_fundamentals":"abort"}`
	rec := serve(newRouter(), "POST", "/api/backtests", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOPE")
}

func TestChart(t *testing.T) {
	body := `{"start":"20191","end":"20193","top_n":2}`
	rec := serve(newRouter(), "POST", "/api/backtests/chart", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

type failingRunner struct{ err error }

func (f failingRunner) Run(context.Context, backtest.Config) (*backtest.Result, error) {
	return nil, f.err
}

func TestRunBacktest_RunnerErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&contracts.MissingPriceError{StockID: "A", Quarter: quarter.MustParse("20191")}, http.StatusUnprocessableEntity},
		{context.Canceled, http.StatusRequestTimeout},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		h := NewBacktestHandler(failingRunner{tt.err}, nil)
		req := httptest.NewRequest("POST", "/api/backtests", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.Run(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusTeapot, "nope")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"nope"}`, rec.Body.String())
}
