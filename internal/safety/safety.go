// Package safety implements the fail-closed readiness evaluator and the
// kill-switch configuration source. Every ambiguous input resolves to
// "not safe": a missing marketdata timestamp, a stale feed, or an
// unreadable config file all block trading.
package safety

import (
	"time"

	"tradecore/internal/model"
)

// Inputs to one readiness evaluation.
type Inputs struct {
	TradingEnabled   bool
	KillSwitch       bool
	MarketDataLastTS *time.Time
	StaleThreshold   time.Duration
	Now              time.Time
	TTLSeconds       int
}

// Evaluate applies the fail-closed rules and returns the resulting
// state. Reason codes accumulate; an empty list means safe to run.
func Evaluate(in Inputs) model.SafetyState {
	s := model.SafetyState{
		TradingEnabled:   in.TradingEnabled,
		KillSwitch:       in.KillSwitch,
		MarketDataLastTS: in.MarketDataLastTS,
		UpdatedAt:        in.Now,
		TTLSeconds:       in.TTLSeconds,
		ReasonCodes:      []string{},
	}

	if !in.TradingEnabled {
		s.ReasonCodes = append(s.ReasonCodes, model.ReasonTradingDisabled)
	}
	if in.KillSwitch {
		s.ReasonCodes = append(s.ReasonCodes, model.ReasonKillSwitchEnabled)
	}

	switch {
	case in.MarketDataLastTS == nil:
		s.MarketDataFresh = false
		s.ReasonCodes = append(s.ReasonCodes, model.ReasonMarketDataMissing)
	case in.Now.Sub(*in.MarketDataLastTS) > in.StaleThreshold:
		s.MarketDataFresh = false
		s.ReasonCodes = append(s.ReasonCodes, model.ReasonMarketDataStale)
	default:
		s.MarketDataFresh = true
	}

	return s
}
