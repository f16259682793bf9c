package statementdog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/pkg/httputil"
	"github.com/wonny/evquant/pkg/logger"
)

// DefaultBaseURL is the public StatementDog host
const DefaultBaseURL = "https://statementdog.com"

// missingValue is how the feed marks a field it has no figure for
const missingValue = "無"

// Client fetches quarterly financial reports from StatementDog
// ⭐ SSOT: StatementDog API calls go through this client only
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new StatementDog client. An empty baseURL uses DefaultBaseURL.
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Module("statementdog"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// series is one labelled column of the response; each point is [index, value]
type series struct {
	Label string          `json:"label"`
	Data  [][]interface{} `json:"data"`
}

// fundamentalsResponse is the subset of /api/v2/fundamentals we read
type fundamentalsResponse struct {
	Common struct {
		TimeCalendarQ series `json:"TimeCalendarQ"`
		TimeFiscalQ   series `json:"TimeFiscalQ"`
	} `json:"common"`
	Quarterly map[string]series `json:"quarterly"`
}

// fieldSetters maps feed column names onto report fields
var fieldSetters = map[string]func(f *contracts.StockFundamentals, v float64){
	"Revenue":         func(f *contracts.StockFundamentals, v float64) { f.Revenue = v },
	"GrossProfit":     func(f *contracts.StockFundamentals, v float64) { f.GrossProfit = v },
	"OperatingIncome": func(f *contracts.StockFundamentals, v float64) { f.OperatingIncome = v },
	"NetIncome":       func(f *contracts.StockFundamentals, v float64) { f.NetIncome = v },
	"NetIncomeAttributableToOwnersOfTheParent": func(f *contracts.StockFundamentals, v float64) {
		f.ParentNetIncome = v
	},
	"CashAndCashEquivalents": func(f *contracts.StockFundamentals, v float64) { f.CashAndEquivalents = v },
	"ShortTermInvestment":    func(f *contracts.StockFundamentals, v float64) { f.ShortTermInvestment = v },
	"Liabilities":            func(f *contracts.StockFundamentals, v float64) { f.TotalLiabilities = v },
	"Equity":                 func(f *contracts.StockFundamentals, v float64) { f.TotalEquity = v },
	"CommonStocks":           func(f *contracts.StockFundamentals, v float64) { f.CommonStock = v },
	"Depreciation":           func(f *contracts.StockFundamentals, v float64) { f.Depreciation = v },
	"Amortization":           func(f *contracts.StockFundamentals, v float64) { f.Amortization = v },
}

// FetchFundamentals returns every quarterly report of stockID between sinceYear and untilYear
func (c *Client) FetchFundamentals(ctx context.Context, stockID string, sinceYear, untilYear int) ([]contracts.StockFundamentals, error) {
	if sinceYear > untilYear {
		return nil, fmt.Errorf("since year %d is after until year %d", sinceYear, untilYear)
	}

	url := fmt.Sprintf("%s/api/v2/fundamentals/%s/%d/%d/cf", c.baseURL, stockID, sinceYear, untilYear)

	var resp fundamentalsResponse
	if err := c.httpClient.GetJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch fundamentals %s: %w", stockID, err)
	}

	reports, err := c.parse(stockID, &resp)
	if err != nil {
		return nil, fmt.Errorf("parse fundamentals %s: %w", stockID, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"stock_id": stockID,
		"count":    len(reports),
	}).Debug("Fetched fundamentals")

	return reports, nil
}

func (c *Client) parse(stockID string, resp *fundamentalsResponse) ([]contracts.StockFundamentals, error) {
	fiscal := resp.Common.TimeFiscalQ.Data
	reports := make([]contracts.StockFundamentals, 0, len(fiscal))

	for idx, point := range fiscal {
		label, ok := pointValue(point)
		if !ok {
			return nil, fmt.Errorf("fiscal quarter %d has no value", idx)
		}
		q, err := ParseFiscalQuarter(fmt.Sprint(label))
		if err != nil {
			return nil, err
		}

		report := contracts.StockFundamentals{StockID: stockID, Quarter: q}
		valid := true
		for column, set := range fieldSetters {
			col, ok := resp.Quarterly[column]
			if !ok || idx >= len(col.Data) {
				continue
			}
			raw, _ := pointValue(col.Data[idx])
			v, err := ParseValue(raw)
			if err != nil {
				c.logger.WithFields(map[string]interface{}{
					"stock_id": stockID,
					"quarter":  q.String(),
					"column":   column,
				}).WithError(err).Warn("Unreadable report value, dropping quarter")
				valid = false
				break
			}
			set(&report, v)
		}

		if valid {
			reports = append(reports, report)
		}
	}

	return reports, nil
}

// pointValue returns the value half of an [index, value] point
func pointValue(point []interface{}) (interface{}, bool) {
	if len(point) < 2 {
		return nil, false
	}
	return point[1], true
}

// ParseValue converts a report cell to a number; the missing marker, null and "" become 0
func ParseValue(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == missingValue {
			return 0, nil
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid report value %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected report value type %T", raw)
	}
}

// ParseFiscalQuarter accepts "20191" and "2019Q1"
func ParseFiscalQuarter(label string) (quarter.Quarter, error) {
	return quarter.Parse(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(label)), "Q", ""))
}
