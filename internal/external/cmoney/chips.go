package cmoney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wonny/evquant/internal/contracts"
	"github.com/wonny/evquant/pkg/httputil"
	"github.com/wonny/evquant/pkg/logger"
)

// DefaultChipsURL is the branch trading host of the CMoney chip app
const DefaultChipsURL = "http://datasv.cmoney.tw:5000"

const (
	tokenPath    = "/identity/token"
	chipsPath    = "/api/chipk"
	chipClientID = "cmchipkmobile"
	chipColumns  = 7 // seq, branch id, branch name, buy lots, sell lots, buy amount, sell amount
)

// ChipConfig holds the chip feed endpoints and login
type ChipConfig struct {
	BaseURL        string // token host, DefaultBaseURL when empty
	ChipsURL       string // DefaultChipsURL when empty
	Account        string
	HashedPassword string
}

// ChipClient fetches daily broker branch trading from CMoney.
// The bearer token is fetched on first use and renewed once on 401.
type ChipClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	cfg        ChipConfig
	location   *time.Location
	now        func() time.Time

	mu    sync.Mutex
	token string
}

// NewChipClient creates a chip client; trade dates are read in loc
func NewChipClient(httpClient *httputil.Client, cfg ChipConfig, loc *time.Location, log *logger.Logger) *ChipClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChipsURL == "" {
		cfg.ChipsURL = DefaultChipsURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ChipsURL = strings.TrimRight(cfg.ChipsURL, "/")
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ChipClient{
		httpClient: httpClient,
		logger:     log.Module("cmoney_chips"),
		cfg:        cfg,
		location:   loc,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type chipResponse struct {
	Data [][]json.RawMessage `json:"data"`
}

// FetchChips returns the branch records of every weekday after since and up to until.
// A zero until stops at yesterday: today's trading is not settled yet.
func (c *ChipClient) FetchChips(ctx context.Context, stockID string, since, until time.Time) ([]contracts.ChipRecord, error) {
	if since.IsZero() {
		return nil, errors.New("fetch chips: since is required")
	}
	since = contracts.Day(since)
	if until.IsZero() {
		until = contracts.Day(c.now().In(c.location)).AddDate(0, 0, -1)
	}
	until = contracts.Day(until)

	var records []contracts.ChipRecord
	days := 0
	for d := since.AddDate(0, 0, 1); !d.After(until); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		daily, err := c.fetchDay(ctx, stockID, d)
		if err != nil {
			return nil, fmt.Errorf("fetch chips %s %s: %w", stockID, d.Format("2006-01-02"), err)
		}
		records = append(records, daily...)
		days++
	}

	c.logger.WithFields(map[string]interface{}{
		"stock_id": stockID,
		"days":     days,
		"count":    len(records),
	}).Debug("Fetched chips")

	return records, nil
}

func (c *ChipClient) fetchDay(ctx context.Context, stockID string, date time.Time) ([]contracts.ChipRecord, error) {
	params := url.Values{}
	params.Set("appId", "2")
	params.Set("needLog", "true")
	params.Set("fundId", "2")
	params.Set("params", fmt.Sprintf("%s_%s_1_1", stockID, date.Format(tradeLayout)))
	reqURL := c.cfg.ChipsURL + chipsPath + "?" + params.Encode()

	var resp chipResponse
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		err = c.httpClient.GetJSONWithHeaders(ctx, reqURL, map[string]string{"Authorization": "Bearer " + token}, &resp)
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.resetToken(token)
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	records := make([]contracts.ChipRecord, 0, len(resp.Data))
	for _, row := range resp.Data {
		record, err := parseChipRow(stockID, date, row)
		if err != nil {
			c.logger.WithField("stock_id", stockID).WithError(err).Warn("Skipping malformed chip row")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *ChipClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}
	if c.cfg.Account == "" || c.cfg.HashedPassword == "" {
		return "", errors.New("cmoney chips: account and hashed password are required")
	}

	form := url.Values{}
	form.Set("account", c.cfg.Account)
	form.Set("hashed_password", c.cfg.HashedPassword)
	form.Set("grant_type", "password")
	form.Set("client_id", chipClientID)
	form.Set("login_method", "email")

	var resp tokenResponse
	if err := c.httpClient.PostFormJSON(ctx, c.cfg.BaseURL+tokenPath, form, &resp); err != nil {
		return "", fmt.Errorf("cmoney login: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("cmoney login: empty access token")
	}

	c.token = resp.AccessToken
	c.logger.Debug("Obtained chip access token")
	return c.token, nil
}

// resetToken drops a rejected token unless another caller already renewed it
func (c *ChipClient) resetToken(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == rejected {
		c.token = ""
	}
}

func parseChipRow(stockID string, date time.Time, row []json.RawMessage) (contracts.ChipRecord, error) {
	if len(row) < chipColumns {
		return contracts.ChipRecord{}, fmt.Errorf("expected %d columns, got %d", chipColumns, len(row))
	}

	branchID := cellText(row[1])
	if branchID == "" {
		return contracts.ChipRecord{}, errors.New("empty branch id")
	}

	var values [4]int64
	for i := range values {
		v, err := cellInt(row[i+3])
		if err != nil {
			return contracts.ChipRecord{}, err
		}
		values[i] = v
	}

	return contracts.ChipRecord{
		StockID:    stockID,
		Date:       contracts.Day(date),
		BranchID:   branchID,
		BranchName: cellText(row[2]),
		BuyLots:    values[0],
		SellLots:   values[1],
		BuyAmount:  values[2],
		SellAmount: values[3],
	}, nil
}

// cellText reads a cell sent either as a JSON string or a bare value
func cellText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func cellInt(raw json.RawMessage) (int64, error) {
	text := strings.ReplaceAll(cellText(raw), ",", "")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", text)
	}
	return int64(v), nil
}
