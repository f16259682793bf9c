package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/evquant/internal/backtest"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/selection"
)

// Load reads a YAML file and returns Config with raw bytes
// ⭐ SSOT: KnownFields(true) fails fast on typos and unused fields
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, data, nil
}

// Parse decodes and validates YAML. Omitted sections take Default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the quarterly EV/EBITDA screen defaults
func Default() *Config {
	d := backtest.DefaultConfig()
	return &Config{
		Meta:    Meta{StrategyID: "ev_ebitda_quarterly", Version: "1"},
		Period:  Period{Start: d.Start.String(), End: d.End.String()},
		Capital: Capital{Initial: d.InitialCapital},
		Ranking: Ranking{
			TopN:                  d.TopN,
			OnMissingFundamentals: string(d.OnMissingFundamentals),
		},
		Portfolio: Portfolio{
			Policy:         string(d.Policy),
			ExitDelayDays:  d.ExitDelayDays,
			OnMissingPrice: string(d.OnMissingPrice),
		},
	}
}

// Backtest converts the file into an engine configuration
func (c *Config) Backtest() (backtest.Config, error) {
	start, err := quarter.Parse(c.Period.Start)
	if err != nil {
		return backtest.Config{}, ValidationError{"period.start", err.Error()}
	}
	end, err := quarter.Parse(c.Period.End)
	if err != nil {
		return backtest.Config{}, ValidationError{"period.end", err.Error()}
	}

	return backtest.Config{
		Start:                 start,
		End:                   end,
		InitialCapital:        c.Capital.Initial,
		TopN:                  c.Ranking.TopN,
		Universe:              append([]string(nil), c.Universe.Stocks...),
		Policy:                backtest.PolicyName(c.Portfolio.Policy),
		ExitDelayDays:         c.Portfolio.ExitDelayDays,
		OnMissingPrice:        selection.MissingPolicy(c.Portfolio.OnMissingPrice),
		OnMissingFundamentals: selection.MissingPolicy(c.Ranking.OnMissingFundamentals),
	}, nil
}

// Hash generates SHA256 hash from Config (canonical JSON)
// Structs only, no maps: field order is fixed so the hash is reproducible
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewRunSnapshot creates a snapshot for reproducing a run
func NewRunSnapshot(cfg *Config, yamlData []byte) (*RunSnapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &RunSnapshot{
		ConfigHash: hash,
		ConfigYAML: string(yamlData),
		StrategyID: cfg.Meta.StrategyID,
		CreatedAt:  time.Now(),
	}, nil
}
