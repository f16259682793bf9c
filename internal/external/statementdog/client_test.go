package statementdog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/pkg/httputil"
	"github.com/wonny/evquant/pkg/logger"
)

const fundamentalsBody = `{
  "common": {
    "TimeCalendarQ": {"label": "日曆年季度", "data": [[0, "2019-03-31"], [1, "2019-06-30"]]},
    "TimeFiscalQ":   {"label": "會計年季度", "data": [[0, "20191"], [1, "20192"]]}
  },
  "quarterly": {
    "Revenue":         {"label": "營收", "data": [[0, "1000"], [1, "1200"]]},
    "GrossProfit":     {"label": "毛利", "data": [[0, "300"], [1, "無"]]},
    "OperatingIncome": {"label": "營業利益", "data": [[0, "200"], [1, 250]]},
    "NetIncome":       {"label": "稅後淨利", "data": [[0, "150"], [1, "160"]]},
    "NetIncomeAttributableToOwnersOfTheParent": {"label": "母公司業主淨利", "data": [[0, "140"], [1, "150"]]},
    "CashAndCashEquivalents": {"label": "現金及約當現金", "data": [[0, "500"], [1, "600"]]},
    "ShortTermInvestment":    {"label": "短期投資", "data": [[0, "無"], [1, "10"]]},
    "Liabilities":  {"label": "總負債", "data": [[0, "800"], [1, "900"]]},
    "Equity":       {"label": "股東權益", "data": [[0, "2000"], [1, "2100"]]},
    "CommonStocks": {"label": "普通股股本", "data": [[0, "100"], [1, "100"]]},
    "Depreciation": {"label": "折舊", "data": [[0, "30"], [1, "31"]]},
    "Amortization": {"label": "攤銷", "data": [[0, "5"], [1, "6"]]}
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(httputil.New(logger.Nop()).DisableRetry(), srv.URL, logger.Nop())
}

func TestFetchFundamentals(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fundamentalsBody))
	})

	reports, err := client.FetchFundamentals(context.Background(), "2330", 2019, 2019)
	require.NoError(t, err)
	assert.Equal(t, "/api/v2/fundamentals/2330/2019/2019/cf", path)
	require.Len(t, reports, 2)

	first := reports[0]
	assert.Equal(t, "2330", first.StockID)
	assert.Equal(t, quarter.MustParse("20191"), first.Quarter)
	assert.Equal(t, 1000.0, first.Revenue)
	assert.Equal(t, 300.0, first.GrossProfit)
	assert.Equal(t, 140.0, first.ParentNetIncome)
	assert.Equal(t, 0.0, first.ShortTermInvestment)
	assert.Equal(t, 800.0, first.TotalLiabilities)
	assert.Equal(t, 100.0, first.CommonStock)
	assert.Equal(t, 5.0, first.Amortization)

	second := reports[1]
	assert.Equal(t, quarter.MustParse("20192"), second.Quarter)
	assert.Equal(t, 0.0, second.GrossProfit)
	assert.Equal(t, 250.0, second.OperatingIncome)
	assert.True(t, second.HasZeroFlag())
}

func TestFetchFundamentals_DropsUnreadableQuarter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
		  "common": {"TimeFiscalQ": {"data": [[0, "20191"], [1, "20192"]]}},
		  "quarterly": {"Revenue": {"data": [[0, "abc"], [1, "12"]]}}
		}`))
	})

	reports, err := client.FetchFundamentals(context.Background(), "1101", 2019, 2019)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 12.0, reports[0].Revenue)
}

func TestFetchFundamentals_Errors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchFundamentals(context.Background(), "9999", 2019, 2020)
	var statusErr *httputil.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = client.FetchFundamentals(context.Background(), "9999", 2021, 2020)
	assert.Error(t, err)
}

func TestFetchFundamentals_BadQuarterLabel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"common": {"TimeFiscalQ": {"data": [[0, "2019Q5"]]}}, "quarterly": {}}`))
	})

	_, err := client.FetchFundamentals(context.Background(), "1101", 2019, 2019)
	assert.ErrorIs(t, err, quarter.ErrInvalidQuarter)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     interface{}
		want    float64
		wantErr bool
	}{
		{"無", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{"1,234", 1234, false},
		{"-56.5", -56.5, false},
		{42.0, 42, false},
		{"n/a", 0, true},
		{true, 0, true},
	}

	for _, tt := range tests {
		got, err := ParseValue(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.raw)
			continue
		}
		require.NoError(t, err, "%v", tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseFiscalQuarter(t *testing.T) {
	q, err := ParseFiscalQuarter("2019Q3")
	require.NoError(t, err)
	assert.Equal(t, quarter.Quarter{Year: 2019, Number: 3}, q)

	q, err = ParseFiscalQuarter(" 20204 ")
	require.NoError(t, err)
	assert.Equal(t, quarter.Quarter{Year: 2020, Number: 4}, q)

	_, err = ParseFiscalQuarter("2019")
	assert.Error(t, err)
}
