// Package strategy provides the strategy engine and built-in strategies.
//
// A Strategy consumes final candles and emits Signals. Signals carry no
// quantity; sizing happens downstream in the allocator after the risk
// breakers have run.
package strategy

import (
	"time"

	"tradecore/internal/model"
)

// Action is the direction a signal requests. HOLD means "do nothing"
// and is also what risk breakers downgrade signals to.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a strategy's capital-free output for one cycle.
type Signal struct {
	StrategyName    string                 `json:"strategy_name"`
	StrategyVersion string                 `json:"strategy_version,omitempty"`
	Symbol          string                 `json:"symbol"`
	Timeframe       string                 `json:"timeframe"`
	Action          Action                 `json:"action"`
	Confidence      float64                `json:"confidence"`
	Reason          string                 `json:"reason"`
	Indicators      map[string]interface{} `json:"indicators,omitempty"`
	TS              time.Time              `json:"ts"`

	// CircuitBreakerMessages accumulates one entry per triggered
	// breaker; populated by the risk engine, never by strategies.
	CircuitBreakerMessages []string `json:"circuit_breaker_messages,omitempty"`

	// AllocationScale starts at 1.0; the VIX guard halves it.
	AllocationScale float64 `json:"allocation_scale"`
}

// Strategy is implemented by every trading strategy.
type Strategy interface {
	// Name returns the unique strategy name.
	Name() string

	// Version identifies the strategy revision carried into intents.
	Version() string

	// OnCandle consumes one final candle. Return a Signal to act or
	// nil to skip this cycle.
	OnCandle(candle model.Candle) *Signal
}
