package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AsOf filters fills by timestamp before matching. Inclusive keeps
// ts <= cutoff, otherwise ts < cutoff.
type AsOf struct {
	Cutoff    time.Time
	Inclusive bool
}

func (a AsOf) keeps(ts time.Time) bool {
	if a.Inclusive {
		return !ts.After(a.Cutoff)
	}
	return ts.Before(a.Cutoff)
}

// FillResult is the per-fill attribution produced by matching.
type FillResult struct {
	TradeID          string          `json:"trade_id"`
	RealizedGross    decimal.Decimal `json:"realized_gross"`
	RealizedFees     decimal.Decimal `json:"realized_fees"`
	RealizedNet      decimal.Decimal `json:"realized_net"`
	PositionQtyAfter decimal.Decimal `json:"position_qty_after"`
}

// GroupResult aggregates one (tenant, uid, strategy, symbol) group.
type GroupResult struct {
	Key GroupKey

	RealizedGross decimal.Decimal
	RealizedFees  decimal.Decimal
	RealizedNet   decimal.Decimal

	Longs  []Lot
	Shorts []Lot

	Fills []FillResult

	multiplier decimal.Decimal
}

// PositionQty returns the signed open quantity: longs minus shorts.
func (g *GroupResult) PositionQty() decimal.Decimal {
	qty := decimal.Zero
	for _, l := range g.Longs {
		qty = qty.Add(l.Qty)
	}
	for _, l := range g.Shorts {
		qty = qty.Sub(l.Qty)
	}
	return qty
}

// Unrealized marks the open lots against mark: sum of (mark - effective)*qty
// for longs, sum of (effective - mark)*qty for shorts, scaled by the contract
// multiplier.
func (g *GroupResult) Unrealized(mark decimal.Decimal) decimal.Decimal {
	u := decimal.Zero
	for _, l := range g.Longs {
		u = u.Add(mark.Sub(l.EffectivePrice).Mul(l.Qty))
	}
	for _, l := range g.Shorts {
		u = u.Add(l.EffectivePrice.Sub(mark).Mul(l.Qty))
	}
	return u.Mul(g.multiplier)
}

// Net returns realized net plus unrealized at mark.
func (g *GroupResult) Net(mark decimal.Decimal) decimal.Decimal {
	return g.RealizedNet.Add(g.Unrealized(mark))
}

// Compute runs FIFO matching over the fills and returns per-group
// results. It is a pure function: fills are copied and sorted by
// (ts, broker_fill_id, order_id, input index) and the input is never
// mutated. An invalid fill aborts with its validation error.
func Compute(fills []Fill, asOf *AsOf) (map[GroupKey]*GroupResult, error) {
	type indexed struct {
		Fill
		idx int
	}
	work := make([]indexed, 0, len(fills))
	for i, f := range fills {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("fill %d: %w", i, err)
		}
		if asOf != nil && !asOf.keeps(f.TS) {
			continue
		}
		work = append(work, indexed{Fill: f, idx: i})
	}

	sort.SliceStable(work, func(i, j int) bool {
		a, b := work[i], work[j]
		if !a.TS.Equal(b.TS) {
			return a.TS.Before(b.TS)
		}
		if a.BrokerFillID != b.BrokerFillID {
			return a.BrokerFillID < b.BrokerFillID
		}
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		return a.idx < b.idx
	})

	groups := make(map[GroupKey]*GroupResult)
	for _, w := range work {
		key := groupOf(w.Fill)
		g := groups[key]
		if g == nil {
			g = &GroupResult{
				Key:           key,
				RealizedGross: decimal.Zero,
				RealizedFees:  decimal.Zero,
				RealizedNet:   decimal.Zero,
				multiplier:    w.multiplier(),
			}
			groups[key] = g
		}
		g.apply(w.Fill, tradeID(w.Fill, w.idx))
	}
	return groups, nil
}

// apply matches one fill against the opposing queue FIFO, splitting a
// cross-through-zero fill into a closing portion and a new opening lot.
func (g *GroupResult) apply(f Fill, id string) {
	perUnit := f.feesPerUnit()
	remaining := f.Qty

	closing, opening := &g.Shorts, &g.Longs
	if f.Side == Sell {
		closing, opening = &g.Longs, &g.Shorts
	}

	gross := decimal.Zero
	fees := decimal.Zero

	for remaining.IsPositive() && len(*closing) > 0 {
		lot := &(*closing)[0]
		matched := decimal.Min(remaining, lot.Qty)

		// delta price is directional: close price minus open for longs,
		// open minus close for shorts.
		var dp decimal.Decimal
		if lot.long {
			dp = f.Price.Sub(lot.price)
		} else {
			dp = lot.price.Sub(f.Price)
		}
		gross = gross.Add(dp.Mul(matched))
		fees = fees.Add(lot.FeesPerUnit.Add(perUnit).Mul(matched))

		lot.Qty = lot.Qty.Sub(matched)
		remaining = remaining.Sub(matched)
		if lot.Qty.IsZero() {
			*closing = (*closing)[1:]
		}
	}

	if remaining.IsPositive() {
		eff := f.Price.Add(perUnit)
		long := f.Side == Buy
		if !long {
			eff = f.Price.Sub(perUnit)
		}
		*opening = append(*opening, Lot{
			Qty:            remaining,
			EffectivePrice: eff,
			FeesPerUnit:    perUnit,
			TS:             f.TS,
			TradeID:        id,
			price:          f.Price,
			long:           long,
		})
	}

	gross = gross.Mul(g.multiplier)
	net := gross.Sub(fees)

	g.RealizedGross = g.RealizedGross.Add(gross)
	g.RealizedFees = g.RealizedFees.Add(fees)
	g.RealizedNet = g.RealizedNet.Add(net)

	g.Fills = append(g.Fills, FillResult{
		TradeID:          id,
		RealizedGross:    gross,
		RealizedFees:     fees,
		RealizedNet:      net,
		PositionQtyAfter: g.PositionQty(),
	})
}

// tradeID picks the most stable identifier available for attribution.
func tradeID(f Fill, idx int) string {
	switch {
	case f.BrokerFillID != "":
		return f.BrokerFillID
	case f.OrderID != "":
		return f.OrderID
	default:
		return fmt.Sprintf("fill-%d", idx)
	}
}
