package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DCAInterval is the schedule granularity of a DCA strategy
type DCAInterval string

const (
	IntervalHourly DCAInterval = "hourly"
	IntervalDaily  DCAInterval = "daily"
	IntervalWeekly DCAInterval = "weekly"
)

// DCAConfig schedules a recurring fixed-amount market buy.
type DCAConfig struct {
	Amount        float64     `json:"amount"`         // fiat amount per run
	Interval      DCAInterval `json:"interval"`       // hourly | daily | weekly
	ExecutionTime string      `json:"execution_time"` // "HH:MM"
	MaxRuns       *int        `json:"max_runs,omitempty"`
}

// ExecutionClock parses ExecutionTime into hour and minute
func (c DCAConfig) ExecutionClock() (hour, minute int, err error) {
	parts := strings.SplitN(c.ExecutionTime, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid execution_time %q", c.ExecutionTime)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid execution_time %q", c.ExecutionTime)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid execution_time %q", c.ExecutionTime)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("execution_time %q out of range", c.ExecutionTime)
	}
	return hour, minute, nil
}

// Validate checks a DCA configuration at creation time
func (c DCAConfig) Validate() error {
	if c.Amount <= 0 {
		return fmt.Errorf("dca amount must be positive")
	}
	switch c.Interval {
	case IntervalHourly, IntervalDaily, IntervalWeekly:
	default:
		return fmt.Errorf("unknown dca interval %q", c.Interval)
	}
	if _, _, err := c.ExecutionClock(); err != nil {
		return err
	}
	if c.MaxRuns != nil && *c.MaxRuns <= 0 {
		return fmt.Errorf("dca max_runs must be positive when set")
	}
	return nil
}

// GridConfig declares a ladder of resting limit orders between two prices.
// The ladder itself is never persisted; it is recomputed from this
// configuration on every tick.
type GridConfig struct {
	LowerPrice float64 `json:"lower_price"`
	UpperPrice float64 `json:"upper_price"`
	GridCount  int     `json:"grid_count"` // N, producing N+1 levels
	OrderSize  float64 `json:"order_size"` // per-order size

	// PriceTolerance is the absolute price distance within which a live
	// order matches a target level. Absolute rather than percentage so
	// matching does not drift at low price magnitudes.
	PriceTolerance float64 `json:"price_tolerance,omitempty"`
}

// DefaultPriceTolerance is used when a grid config does not set one.
const DefaultPriceTolerance = 1.0

// Tolerance returns the effective matching tolerance
func (c GridConfig) Tolerance() float64 {
	if c.PriceTolerance > 0 {
		return c.PriceTolerance
	}
	return DefaultPriceTolerance
}

// Validate checks a grid configuration at creation time. Evaluators rely
// on this and do not re-validate.
func (c GridConfig) Validate() error {
	if c.GridCount < 2 {
		return fmt.Errorf("grid count must be at least 2")
	}
	if c.LowerPrice <= 0 {
		return fmt.Errorf("grid lower price must be positive")
	}
	if c.UpperPrice <= c.LowerPrice {
		return fmt.Errorf("grid upper price must exceed lower price")
	}
	if c.OrderSize <= 0 {
		return fmt.Errorf("grid order size must be positive")
	}
	return nil
}

// TPSLConfig exits a position at a take-profit or stop-loss threshold
// relative to the entry price. A zero percentage disables that side.
type TPSLConfig struct {
	EntryPrice     float64 `json:"entry_price"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	Amount         float64 `json:"amount"`
}

// TakeProfitPrice returns the upper trigger threshold
func (c TPSLConfig) TakeProfitPrice() float64 {
	return c.EntryPrice * (1 + c.TakeProfitPct/100)
}

// StopLossPrice returns the lower trigger threshold
func (c TPSLConfig) StopLossPrice() float64 {
	return c.EntryPrice * (1 - c.StopLossPct/100)
}

// Validate checks a TP/SL configuration at creation time
func (c TPSLConfig) Validate() error {
	if c.EntryPrice <= 0 {
		return fmt.Errorf("tp/sl entry price must be positive")
	}
	if c.Amount <= 0 {
		return fmt.Errorf("tp/sl amount must be positive")
	}
	if c.TakeProfitPct < 0 || c.StopLossPct < 0 {
		return fmt.Errorf("tp/sl percentages must not be negative")
	}
	if c.TakeProfitPct == 0 && c.StopLossPct == 0 {
		return fmt.Errorf("tp/sl requires at least one non-zero threshold")
	}
	return nil
}

// ParseDCAConfig decodes a strategy's config JSON as a DCA configuration
func ParseDCAConfig(raw []byte) (DCAConfig, error) {
	var cfg DCAConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse dca config: %w", err)
	}
	return cfg, nil
}

// ParseGridConfig decodes a strategy's config JSON as a grid configuration
func ParseGridConfig(raw []byte) (GridConfig, error) {
	var cfg GridConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse grid config: %w", err)
	}
	return cfg, nil
}

// ParseTPSLConfig decodes a strategy's config JSON as a TP/SL configuration
func ParseTPSLConfig(raw []byte) (TPSLConfig, error) {
	var cfg TPSLConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse tp/sl config: %w", err)
	}
	return cfg, nil
}

// ValidateConfig validates config JSON for the given kind. Used at
// strategy creation so evaluators can trust stored configurations.
func ValidateConfig(kind StrategyKind, raw []byte) error {
	switch kind {
	case KindDCA:
		cfg, err := ParseDCAConfig(raw)
		if err != nil {
			return err
		}
		return cfg.Validate()
	case KindGrid:
		cfg, err := ParseGridConfig(raw)
		if err != nil {
			return err
		}
		return cfg.Validate()
	case KindTPSL:
		cfg, err := ParseTPSLConfig(raw)
		if err != nil {
			return err
		}
		return cfg.Validate()
	default:
		return fmt.Errorf("unknown strategy kind %q", kind)
	}
}
