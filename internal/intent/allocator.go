package intent

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"tradecore/internal/model"
)

// GateFunc is an optional strategy-limit check consulted with the
// computed notional before a proposal is produced.
type GateFunc func(ctx context.Context, in *model.AgentIntent, notional float64) (bool, error)

// ReasonStrategyLimitsBlocked marks an allocation denied by the gate.
const ReasonStrategyLimitsBlocked = "strategy_limits_blocked"

// Allocator is the only component that attaches quantity to a trade.
type Allocator struct {
	// DefaultQty sizes DIRECTIONAL and EXIT intents. Defaults to 1.
	DefaultQty int64

	// Gate, when set, can veto an allocation by notional.
	Gate GateFunc
}

// Allocation is the sizing outcome for one intent.
type Allocation struct {
	Allowed  bool                 `json:"allowed"`
	Reason   string               `json:"reason,omitempty"`
	Proposal *model.OrderProposal `json:"proposal,omitempty"`
}

// Allocate sizes an intent against the last traded price. FLAT intents
// and zero-quantity hedges yield no proposal; a vetoing gate yields
// {allowed:false, reason:"strategy_limits_blocked"}.
func (a *Allocator) Allocate(ctx context.Context, in *model.AgentIntent, lastPrice float64) (Allocation, error) {
	if in.Side == model.SideFlat {
		return Allocation{Allowed: true, Reason: "flat_intent"}, nil
	}

	qty := a.DefaultQty
	if qty <= 0 {
		qty = 1
	}
	if in.Kind == model.KindDeltaHedge {
		delta := 0.0
		if in.Constraints.DeltaToHedge != nil {
			delta = *in.Constraints.DeltaToHedge
		}
		qty = int64(math.Round(math.Abs(delta)))
		if qty == 0 {
			return Allocation{Allowed: true, Reason: "zero_quantity"}, nil
		}
	}

	if a.Gate != nil {
		notional := lastPrice * float64(qty)
		ok, err := a.Gate(ctx, in, notional)
		if err != nil {
			return Allocation{}, err
		}
		if !ok {
			return Allocation{Allowed: false, Reason: ReasonStrategyLimitsBlocked}, nil
		}
	}

	return Allocation{
		Allowed: true,
		Proposal: &model.OrderProposal{
			ProposalID:      uuid.NewString(),
			IntentID:        in.IntentID,
			CreatedAt:       time.Now().UTC(),
			CorrelationID:   in.CorrelationID,
			Symbol:          in.Symbol,
			AssetType:       in.AssetType,
			Side:            in.Side,
			Quantity:        qty,
			LimitPrice:      in.Constraints.LimitPrice,
			Constraints:     in.Constraints,
			StrategyName:    in.StrategyName,
			StrategyVersion: in.StrategyVersion,
		},
	}, nil
}
