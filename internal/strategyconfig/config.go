package strategyconfig

import "time"

// Config is a complete backtest run definition
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Period    Period    `yaml:"period" json:"period"`
	Capital   Capital   `yaml:"capital" json:"capital"`
	Ranking   Ranking   `yaml:"ranking" json:"ranking"`
	Portfolio Portfolio `yaml:"portfolio" json:"portfolio"`
	Universe  Universe  `yaml:"universe" json:"universe"`
	Report    Report    `yaml:"report" json:"report"`
}

// Meta identifies the run
type Meta struct {
	StrategyID  string `yaml:"strategy_id" json:"strategy_id"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
}

// Period is the simulated range; end is the final liquidation quarter
type Period struct {
	Start string `yaml:"start" json:"start"` // YYYYQ, e.g. "20161"
	End   string `yaml:"end" json:"end"`
}

// Capital holds the starting cash
type Capital struct {
	Initial float64 `yaml:"initial" json:"initial"`
}

// Ranking configures the EV/EBITDA screen
type Ranking struct {
	TopN                  int    `yaml:"top_n" json:"top_n"`
	OnMissingFundamentals string `yaml:"on_missing_fundamentals" json:"on_missing_fundamentals"` // skip | abort
}

// Portfolio configures rebalancing
type Portfolio struct {
	Policy         string `yaml:"policy" json:"policy"` // full | incremental
	ExitDelayDays  int    `yaml:"exit_delay_days" json:"exit_delay_days"`
	OnMissingPrice string `yaml:"on_missing_price" json:"on_missing_price"` // skip | abort
}

// Universe restricts the screen; empty means every stock with a report
type Universe struct {
	Stocks []string `yaml:"stocks" json:"stocks"`
}

// Report configures run outputs
type Report struct {
	ChartPath string `yaml:"chart_path" json:"chart_path"`
}

// RunSnapshot ties a result to the exact configuration that produced it
type RunSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	CreatedAt  time.Time `json:"created_at"`
}
