package model

import (
	"encoding/json"
	"time"
)

// AssetType identifies the instrument class of an intent.
type AssetType string

const (
	AssetEquity AssetType = "EQUITY"
	AssetOption AssetType = "OPTION"
	AssetFuture AssetType = "FUTURE"
)

// IntentKind identifies why the strategy wants to trade.
type IntentKind string

const (
	KindDirectional IntentKind = "DIRECTIONAL"
	KindDeltaHedge  IntentKind = "DELTA_HEDGE"
	KindExit        IntentKind = "EXIT"
)

// Side is the requested direction. FLAT means "no position wanted".
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideFlat Side = "FLAT"
)

// OptionSpec describes an option contract when AssetType is OPTION.
type OptionSpec struct {
	Expiry string  `json:"expiry"` // YYYY-MM-DD
	Strike float64 `json:"strike"`
	Right  string  `json:"right"` // "C" or "P"
}

// Rationale explains an intent: a short human-readable reason plus the
// indicator values that produced it. Indicator maps are redacted before
// persistence (see intent.Redact).
type Rationale struct {
	ShortReason string                 `json:"short_reason"`
	Indicators  map[string]interface{} `json:"indicators,omitempty"`
}

// Constraints bound how an intent may be executed.
type Constraints struct {
	ValidUntil            time.Time `json:"valid_until_utc"`
	RequiresHumanApproval bool      `json:"requires_human_approval"`
	OrderType             string    `json:"order_type"`    // MARKET, LIMIT
	TimeInForce           string    `json:"time_in_force"` // DAY, IOC, GTC
	LimitPrice            *float64  `json:"limit_price,omitempty"`
	DeltaToHedge          *float64  `json:"delta_to_hedge,omitempty"`
}

// AgentIntent is the capital-free trade request a strategy emits.
// It deliberately carries no quantity or notional fields; sizing is the
// allocator's job. Construct via intent.New, which enforces the contract.
type AgentIntent struct {
	IntentID        string      `json:"intent_id"`
	CreatedAt       time.Time   `json:"created_at_utc"`
	RepoID          string      `json:"repo_id"`
	AgentName       string      `json:"agent_name"`
	StrategyName    string      `json:"strategy_name"`
	StrategyVersion string      `json:"strategy_version,omitempty"`
	CorrelationID   string      `json:"correlation_id"`
	Symbol          string      `json:"symbol"`
	AssetType       AssetType   `json:"asset_type"`
	Option          *OptionSpec `json:"option,omitempty"`
	Kind            IntentKind  `json:"kind"`
	Side            Side        `json:"side"`
	Confidence      *float64    `json:"confidence,omitempty"`
	Rationale       Rationale   `json:"rationale"`
	Constraints     Constraints `json:"constraints"`
}

// JSON returns the canonical wire encoding of the intent. The encoding is
// deterministic for a given intent, so repeated emission of the same
// intent_id produces byte-identical audit lines.
func (i *AgentIntent) JSON() []byte {
	b, _ := json.Marshal(i)
	return b
}

// OrderProposal is the sized sibling of AgentIntent, produced only by the
// allocator. Quantity is always > 0; FLAT intents never become proposals.
type OrderProposal struct {
	ProposalID      string      `json:"proposal_id"`
	IntentID        string      `json:"intent_id"`
	CreatedAt       time.Time   `json:"created_at_utc"`
	CorrelationID   string      `json:"correlation_id"`
	Symbol          string      `json:"symbol"`
	AssetType       AssetType   `json:"asset_type"`
	Side            Side        `json:"side"`
	Quantity        int64       `json:"quantity"`
	LimitPrice      *float64    `json:"limit_price,omitempty"`
	Constraints     Constraints `json:"constraints"`
	StrategyName    string      `json:"strategy_name"`
	StrategyVersion string      `json:"strategy_version,omitempty"`
}

// JSON returns the JSON-encoded proposal.
func (p *OrderProposal) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}
