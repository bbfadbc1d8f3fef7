package model

import "time"

// Reason codes attached to SafetyState when the system is not safe to run.
const (
	ReasonTradingDisabled   = "trading_disabled"
	ReasonKillSwitchEnabled = "kill_switch_enabled"
	ReasonMarketDataMissing = "marketdata_last_ts_missing"
	ReasonMarketDataStale   = "marketdata_stale"
)

// SafetyState is the fail-closed readiness evaluation result.
// SafeToRun reports whether all gates pass.
type SafetyState struct {
	TradingEnabled   bool       `json:"trading_enabled"`
	KillSwitch       bool       `json:"kill_switch"`
	MarketDataFresh  bool       `json:"marketdata_fresh"`
	MarketDataLastTS *time.Time `json:"marketdata_last_ts,omitempty"`
	ReasonCodes      []string   `json:"reason_codes"`
	UpdatedAt        time.Time  `json:"updated_at"`
	TTLSeconds       int        `json:"ttl_seconds"`
}

// SafeToRun is true iff trading is enabled, the kill switch is off and
// market data is present and fresh.
func (s *SafetyState) SafeToRun() bool {
	return s.TradingEnabled && !s.KillSwitch && s.MarketDataFresh && s.MarketDataLastTS != nil
}

// HeartbeatStatus is the derived liveness status of a service.
type HeartbeatStatus string

const (
	HeartbeatHealthy  HeartbeatStatus = "healthy"
	HeartbeatDegraded HeartbeatStatus = "degraded"
	HeartbeatDown     HeartbeatStatus = "down"
	HeartbeatUnknown  HeartbeatStatus = "unknown"
)

// HeartbeatInfo describes the last observed heartbeat of a service.
type HeartbeatInfo struct {
	ServiceID     string          `json:"service_id"`
	LastHeartbeat *time.Time      `json:"last_heartbeat,omitempty"`
	Status        HeartbeatStatus `json:"status"`
	SecondsSince  float64         `json:"seconds_since"`
	IsStale       bool            `json:"is_stale"`
}
