package strategyconfig

import (
	"fmt"
	"regexp"

	"github.com/wonny/evquant/internal/backtest"
	"github.com/wonny/evquant/internal/quarter"
	"github.com/wonny/evquant/internal/selection"
)

// ValidationError is a fatal configuration problem
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning flags a legal but suspicious setting
type Warning struct {
	Code    string
	Message string
}

var stockIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{4,6}$`)

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}

	// === Period ===
	start, err := quarter.Parse(cfg.Period.Start)
	if err != nil {
		return ValidationError{"period.start", "must be YYYYQ with Q in 1..4"}
	}
	end, err := quarter.Parse(cfg.Period.End)
	if err != nil {
		return ValidationError{"period.end", "must be YYYYQ with Q in 1..4"}
	}
	if !start.Before(end) {
		return ValidationError{"period", "start must be before end"}
	}

	// === Capital ===
	if cfg.Capital.Initial <= 0 {
		return ValidationError{"capital.initial", "must be > 0"}
	}

	// === Ranking ===
	if cfg.Ranking.TopN <= 0 {
		return ValidationError{"ranking.top_n", "must be > 0"}
	}
	if !selection.MissingPolicy(cfg.Ranking.OnMissingFundamentals).Valid() {
		return ValidationError{"ranking.on_missing_fundamentals", "must be skip or abort"}
	}

	// === Portfolio ===
	if !backtest.PolicyName(cfg.Portfolio.Policy).Valid() {
		return ValidationError{"portfolio.policy", "must be full or incremental"}
	}
	if cfg.Portfolio.ExitDelayDays < 0 {
		return ValidationError{"portfolio.exit_delay_days", "must be >= 0"}
	}
	if !selection.MissingPolicy(cfg.Portfolio.OnMissingPrice).Valid() {
		return ValidationError{"portfolio.on_missing_price", "must be skip or abort"}
	}

	// === Universe ===
	seen := make(map[string]bool, len(cfg.Universe.Stocks))
	for i, id := range cfg.Universe.Stocks {
		field := fmt.Sprintf("universe.stocks[%d]", i)
		if !stockIDPattern.MatchString(id) {
			return ValidationError{field, fmt.Sprintf("invalid stock id %q", id)}
		}
		if seen[id] {
			return ValidationError{field, fmt.Sprintf("duplicate stock id %q", id)}
		}
		seen[id] = true
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if n := len(cfg.Universe.Stocks); n > 0 && n < cfg.Ranking.TopN {
		warnings = append(warnings, Warning{
			Code:    "SMALL_UNIVERSE",
			Message: fmt.Sprintf("universe has %d stocks, fewer than top_n %d: every eligible stock is bought", n, cfg.Ranking.TopN),
		})
	}

	if cfg.Portfolio.ExitDelayDays > 60 {
		warnings = append(warnings, Warning{
			Code:    "LONG_EXIT_DELAY",
			Message: "exit delay > 60 days overlaps the next report window",
		})
	}

	if cfg.Portfolio.Policy == string(backtest.PolicyIncremental) && cfg.Portfolio.ExitDelayDays > 0 {
		warnings = append(warnings, Warning{
			Code:    "DELAY_FINAL_ONLY",
			Message: "incremental policy applies the exit delay to the final liquidation only",
		})
	}

	return warnings
}
