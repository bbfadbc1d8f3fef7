// Package intent constructs, validates, sizes, and audits agent
// intents. An intent is capital-free: it says what the strategy wants
// and why, never how much. Sizing happens exclusively in the Allocator,
// which turns an allowed intent into an OrderProposal.
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradecore/internal/model"
)

var (
	// ErrCapitalField is a programmer error: something tried to smuggle
	// sizing into an intent.
	ErrCapitalField = errors.New("intent: quantity/notional fields are forbidden on intents")

	ErrMissingSymbol = errors.New("intent: missing symbol")
	ErrBadSide       = errors.New("intent: invalid side")
	ErrBadKind       = errors.New("intent: invalid kind")
	ErrBadAssetType  = errors.New("intent: invalid asset type")
	ErrBadConfidence = errors.New("intent: confidence must be in [0,1]")
	ErrMissingDelta  = errors.New("intent: DELTA_HEDGE requires delta_to_hedge")
)

// Params are the caller-supplied fields for a new intent. Identity
// fields left empty are generated.
type Params struct {
	RepoID          string
	AgentName       string
	StrategyName    string
	StrategyVersion string
	CorrelationID   string

	Symbol    string
	AssetType model.AssetType
	Option    *model.OptionSpec
	Kind      model.IntentKind
	Side      model.Side

	Confidence  *float64
	Rationale   model.Rationale
	Constraints model.Constraints
}

// New validates params and builds an AgentIntent with a fresh intent_id.
func New(p Params, now time.Time) (*model.AgentIntent, error) {
	if p.Symbol == "" {
		return nil, ErrMissingSymbol
	}
	switch p.Side {
	case model.SideBuy, model.SideSell, model.SideFlat:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadSide, p.Side)
	}
	switch p.Kind {
	case model.KindDirectional, model.KindDeltaHedge, model.KindExit:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadKind, p.Kind)
	}
	switch p.AssetType {
	case model.AssetEquity, model.AssetOption, model.AssetFuture:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadAssetType, p.AssetType)
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return nil, fmt.Errorf("%w: %v", ErrBadConfidence, *p.Confidence)
	}
	if p.Kind == model.KindDeltaHedge && p.Constraints.DeltaToHedge == nil {
		return nil, ErrMissingDelta
	}

	correlation := p.CorrelationID
	if correlation == "" {
		correlation = uuid.NewString()
	}
	return &model.AgentIntent{
		IntentID:        uuid.NewString(),
		CreatedAt:       now.UTC(),
		RepoID:          p.RepoID,
		AgentName:       p.AgentName,
		StrategyName:    p.StrategyName,
		StrategyVersion: p.StrategyVersion,
		CorrelationID:   correlation,
		Symbol:          p.Symbol,
		AssetType:       p.AssetType,
		Option:          p.Option,
		Kind:            p.Kind,
		Side:            p.Side,
		Confidence:      p.Confidence,
		Rationale:       p.Rationale,
		Constraints:     p.Constraints,
	}, nil
}

// forbiddenKeys are rejected anywhere in an incoming intent document.
var forbiddenKeys = []string{"quantity", "qty", "notional", "notional_usd"}

// Parse decodes an intent wire record, failing fast if the document
// carries any sizing field.
func Parse(raw []byte) (*model.AgentIntent, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("intent: decode: %w", err)
	}
	for _, k := range forbiddenKeys {
		if _, present := doc[k]; present {
			return nil, fmt.Errorf("%w: found %q", ErrCapitalField, k)
		}
	}

	var in model.AgentIntent
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("intent: decode: %w", err)
	}
	if in.IntentID == "" {
		return nil, errors.New("intent: missing intent_id")
	}
	if in.Symbol == "" {
		return nil, ErrMissingSymbol
	}
	return &in, nil
}
