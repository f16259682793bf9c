package cmoney

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/pkg/httputil"
	"github.com/wonny/evquant/pkg/logger"
)

// DefaultBaseURL is the public CMoney API host
const DefaultBaseURL = "https://api.cmoney.tw"

const (
	dtnoPath    = "/MobileService/ashx/GetDtnoData.ashx"
	dailyDtNo   = "10519905"
	rowColumns  = 8 // date, open, high, low, close, change, change %, volume
	tradeLayout = "20060102"
)

// Client fetches daily candles from CMoney
// ⭐ SSOT: CMoney API calls go through this client only
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	location   *time.Location
	now        func() time.Time
}

// NewClient creates a new CMoney client. Trade dates are read in loc (Asia/Taipei in production).
func NewClient(httpClient *httputil.Client, baseURL string, loc *time.Location, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Module("cmoney"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		location:   loc,
		now:        time.Now,
	}
}

// dtnoResponse is the GetDtnoData payload; every cell is a string
type dtnoResponse struct {
	Title []string   `json:"Title"`
	Data  [][]string `json:"Data"`
}

// FetchDailyPrices returns the candles of stockID dated after since and up to until, ascending.
// A zero until means no upper bound.
func (c *Client) FetchDailyPrices(ctx context.Context, stockID string, since, until time.Time) ([]contracts.PriceRecord, error) {
	since = contracts.Day(since)
	if !until.IsZero() {
		until = contracts.Day(until)
	}

	var resp dtnoResponse
	if err := c.httpClient.GetJSON(ctx, c.dailyURL(stockID, since), &resp); err != nil {
		return nil, fmt.Errorf("fetch daily prices %s: %w", stockID, err)
	}

	records := make([]contracts.PriceRecord, 0, len(resp.Data))
	for _, row := range resp.Data {
		record, err := c.parseRow(stockID, row)
		if err != nil {
			c.logger.WithField("stock_id", stockID).WithError(err).Warn("Skipping malformed candle")
			continue
		}

		if !record.Date.After(since) {
			continue
		}
		if !until.IsZero() && record.Date.After(until) {
			continue
		}
		records = append(records, record)
	}

	c.logger.WithFields(map[string]interface{}{
		"stock_id": stockID,
		"count":    len(records),
	}).Debug("Fetched daily prices")

	return records, nil
}

// dailyURL requests enough trailing days to cover since; ';' must stay unescaped in paramStr
func (c *Client) dailyURL(stockID string, since time.Time) string {
	days := int(math.Ceil(c.now().Sub(since).Hours() / 24))
	if days < 1 {
		days = 1
	}

	paramStr := fmt.Sprintf(
		"AssignID=%s;DTMode=0;DTRange=%d;DTOrder=1;MajorTable=M002;MTPeriod=0;",
		stockID, days,
	)

	params := url.Values{}
	params.Set("action", "GetDtNoData")
	params.Set("dtNo", dailyDtNo)
	params.Set("filterNo", "0")
	params.Set("paramStr", paramStr)

	query := strings.ReplaceAll(params.Encode(), "%3B", ";")
	return c.baseURL + dtnoPath + "?" + query
}

func (c *Client) parseRow(stockID string, row []string) (contracts.PriceRecord, error) {
	if len(row) < rowColumns {
		return contracts.PriceRecord{}, fmt.Errorf("expected %d columns, got %d", rowColumns, len(row))
	}

	date, err := time.ParseInLocation(tradeLayout, strings.TrimSpace(row[0]), c.location)
	if err != nil {
		return contracts.PriceRecord{}, fmt.Errorf("invalid trade date %q", row[0])
	}

	var values [4]float64
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return contracts.PriceRecord{}, fmt.Errorf("invalid price %q", row[i+1])
		}
		values[i] = v
	}

	volume, err := strconv.ParseFloat(strings.TrimSpace(row[7]), 64)
	if err != nil {
		return contracts.PriceRecord{}, fmt.Errorf("invalid volume %q", row[7])
	}

	return contracts.PriceRecord{
		StockID: stockID,
		Date:    contracts.Day(date),
		Open:    values[0],
		High:    values[1],
		Low:     values[2],
		Close:   values[3],
		Volume:  int64(volume),
	}, nil
}
