package model

import "time"

// BreakerType identifies which risk circuit breaker produced an event.
type BreakerType string

const (
	BreakerDailyLoss     BreakerType = "daily_loss"
	BreakerVIXGuard      BreakerType = "vix_guard"
	BreakerConcentration BreakerType = "concentration"
)

// Severity of a circuit breaker event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// CircuitBreakerEvent is the audit record persisted each time a breaker
// triggers. Writes are best-effort; a persistence failure never blocks
// the breaker decision.
type CircuitBreakerEvent struct {
	BreakerType BreakerType       `json:"breaker_type"`
	TS          time.Time         `json:"ts"`
	UserID      string            `json:"user_id"`
	TenantID    string            `json:"tenant_id"`
	StrategyID  string            `json:"strategy_id,omitempty"`
	Severity    Severity          `json:"severity"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
