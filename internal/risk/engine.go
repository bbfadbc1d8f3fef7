// Package risk applies circuit breakers to outgoing strategy signals.
//
// Three breakers run in order on every signal: daily loss limit, VIX
// guard, concentration check. Event persistence and notifications are
// best-effort; a failed write never changes the breaker decision.
package risk

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
	"tradecore/internal/model"
	"tradecore/internal/strategy"
)

// FillSource supplies today's fills for the daily-loss computation.
type FillSource interface {
	FillsSince(ctx context.Context, since time.Time) ([]ledger.Fill, error)
}

// VIXSource supplies the (cached) volatility index level.
type VIXSource interface {
	VIX(ctx context.Context) (float64, error)
}

// ShadowModeSetter flips all of a user's strategies into shadow mode.
type ShadowModeSetter interface {
	SetShadowMode(ctx context.Context, userID string, on bool) error
}

// EventSink persists breaker audit events.
type EventSink interface {
	RecordEvent(ctx context.Context, ev model.CircuitBreakerEvent) error
}

// Notifier delivers breaker alerts to operators.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Account is the per-user context a signal is evaluated against.
type Account struct {
	TenantID   string
	UserID     string
	StrategyID string

	StartingEquity decimal.Decimal
	PortfolioValue float64
	// TickerValue is the current position value in the signal's symbol.
	TickerValue float64
}

// Config tunes the breaker thresholds.
type Config struct {
	// DailyLossLimitPct is the loss fraction that trips the daily
	// breaker, held as a decimal so the threshold comparison stays
	// exact. Defaults to 0.02 (2% of starting equity).
	DailyLossLimitPct decimal.Decimal

	// VIXThreshold halves allocation above this level. Defaults to 30.
	VIXThreshold float64

	// ConcentrationLimit blocks BUYs when ticker/portfolio exceeds it.
	// Defaults to 0.20.
	ConcentrationLimit float64
}

func (c *Config) defaults() {
	if c.DailyLossLimitPct.IsZero() {
		c.DailyLossLimitPct = decimal.RequireFromString("0.02")
	}
	if c.VIXThreshold == 0 {
		c.VIXThreshold = 30
	}
	if c.ConcentrationLimit == 0 {
		c.ConcentrationLimit = 0.20
	}
}

// Engine evaluates the ordered breakers.
type Engine struct {
	cfg Config

	fills    FillSource
	vix      VIXSource
	shadow   ShadowModeSetter
	events   EventSink
	notifier Notifier

	// OnTriggered is an optional metrics hook keyed by breaker type.
	OnTriggered func(model.BreakerType)

	now func() time.Time
}

// New creates a breaker engine. vix, shadow, events, and notifier may
// be nil; the corresponding behavior degrades gracefully.
func New(cfg Config, fills FillSource, vix VIXSource, shadow ShadowModeSetter, events EventSink, notifier Notifier) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:      cfg,
		fills:    fills,
		vix:      vix,
		shadow:   shadow,
		events:   events,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Apply runs the breakers in order and returns the (possibly modified)
// signal. The input signal is copied, never mutated.
func (e *Engine) Apply(ctx context.Context, sig strategy.Signal, acct Account) strategy.Signal {
	if sig.AllocationScale == 0 {
		sig.AllocationScale = 1.0
	}

	if tripped := e.dailyLoss(ctx, &sig, acct); tripped {
		// Short-circuit: remaining breakers are not evaluated.
		return sig
	}
	e.vixGuard(ctx, &sig, acct)
	e.concentration(ctx, &sig, acct)
	return sig
}

// dailyLoss trips when today's realized P&L breaches the loss limit.
// Returns true to short-circuit the chain.
func (e *Engine) dailyLoss(ctx context.Context, sig *strategy.Signal, acct Account) bool {
	if e.fills == nil || !acct.StartingEquity.IsPositive() {
		return false
	}

	midnight := e.now().Truncate(24 * time.Hour)
	fills, err := e.fills.FillsSince(ctx, midnight)
	if err != nil {
		log.Printf("[risk] daily loss: fills unavailable: %v", err)
		return false
	}

	groups, err := ledger.Compute(fills, nil)
	if err != nil {
		log.Printf("[risk] daily loss: ledger error: %v", err)
		return false
	}

	realized := decimal.Zero
	for key, g := range groups {
		if key.TenantID == acct.TenantID && key.UID == acct.UserID && key.StrategyID == acct.StrategyID {
			realized = realized.Add(g.RealizedNet)
		}
	}

	limit := e.cfg.DailyLossLimitPct.Neg()
	ratio := realized.Div(acct.StartingEquity)
	if ratio.GreaterThan(limit) {
		return false
	}

	msg := fmt.Sprintf("daily loss limit breached: realized %s on equity %s (limit %s%%)",
		realized, acct.StartingEquity, e.cfg.DailyLossLimitPct.Mul(decimal.NewFromInt(100)))
	sig.Action = strategy.ActionHold
	sig.CircuitBreakerMessages = append(sig.CircuitBreakerMessages, msg)

	if e.shadow != nil {
		if err := e.shadow.SetShadowMode(ctx, acct.UserID, true); err != nil {
			log.Printf("[risk] shadow mode switch failed: %v", err)
		}
	}
	e.record(ctx, model.CircuitBreakerEvent{
		BreakerType: model.BreakerDailyLoss,
		TS:          e.now(),
		UserID:      acct.UserID,
		TenantID:    acct.TenantID,
		StrategyID:  acct.StrategyID,
		Severity:    model.SeverityCritical,
		Message:     msg,
		Metadata: map[string]string{
			"realized":        realized.String(),
			"starting_equity": acct.StartingEquity.String(),
		},
	})
	return true
}

// vixGuard halves the allocation in elevated volatility. Never blocks.
func (e *Engine) vixGuard(ctx context.Context, sig *strategy.Signal, acct Account) {
	if e.vix == nil {
		return
	}
	level, err := e.vix.VIX(ctx)
	if err != nil {
		log.Printf("[risk] vix unavailable: %v", err)
		return
	}
	if level <= e.cfg.VIXThreshold {
		return
	}

	sig.AllocationScale /= 2
	msg := fmt.Sprintf("VIX %.2f above %.0f, halving allocation", level, e.cfg.VIXThreshold)
	sig.CircuitBreakerMessages = append(sig.CircuitBreakerMessages, msg)

	e.record(ctx, model.CircuitBreakerEvent{
		BreakerType: model.BreakerVIXGuard,
		TS:          e.now(),
		UserID:      acct.UserID,
		TenantID:    acct.TenantID,
		StrategyID:  acct.StrategyID,
		Severity:    model.SeverityWarning,
		Message:     msg,
		Metadata:    map[string]string{"vix": fmt.Sprintf("%.2f", level)},
	})
}

// concentration downgrades oversized BUYs to HOLD.
func (e *Engine) concentration(ctx context.Context, sig *strategy.Signal, acct Account) {
	if sig.Action != strategy.ActionBuy || acct.PortfolioValue <= 0 {
		return
	}
	share := acct.TickerValue / acct.PortfolioValue
	if share <= e.cfg.ConcentrationLimit {
		return
	}

	msg := fmt.Sprintf("concentration %.1f%% of portfolio exceeds %.0f%% limit, downgrading to HOLD",
		share*100, e.cfg.ConcentrationLimit*100)
	sig.Action = strategy.ActionHold
	sig.CircuitBreakerMessages = append(sig.CircuitBreakerMessages, msg)

	e.record(ctx, model.CircuitBreakerEvent{
		BreakerType: model.BreakerConcentration,
		TS:          e.now(),
		UserID:      acct.UserID,
		TenantID:    acct.TenantID,
		StrategyID:  acct.StrategyID,
		Severity:    model.SeverityWarning,
		Message:     msg,
		Metadata:    map[string]string{"symbol": sig.Symbol, "share": fmt.Sprintf("%.4f", share)},
	})
}

// record persists and notifies best-effort.
func (e *Engine) record(ctx context.Context, ev model.CircuitBreakerEvent) {
	if e.OnTriggered != nil {
		e.OnTriggered(ev.BreakerType)
	}
	if e.events != nil {
		if err := e.events.RecordEvent(ctx, ev); err != nil {
			log.Printf("[risk] event persist failed: %v", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, string(ev.BreakerType), ev.Message); err != nil {
			log.Printf("[risk] notify failed: %v", err)
		}
	}
}
