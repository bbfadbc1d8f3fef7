// Package perf aggregates ledger results into period performance and
// marketplace revenue-share splits.
package perf

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
)

// Period is a half-open attribution window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Attribution is one group's P&L inside a period. Realized figures are
// deltas of as-of totals, so a position opened before the period and
// closed inside it lands here correctly.
type Attribution struct {
	Key ledger.GroupKey

	RealizedGross decimal.Decimal
	RealizedFees  decimal.Decimal
	RealizedNet   decimal.Decimal

	// Unrealized is computed only at period end, against the supplied
	// mark. Zero when no mark is available for the symbol.
	Unrealized decimal.Decimal
}

// Attribute computes per-group attribution for a period. marks maps
// symbol to the end-of-period mark price.
func Attribute(fills []ledger.Fill, p Period, marks map[string]decimal.Decimal) (map[ledger.GroupKey]Attribution, error) {
	if !p.End.After(p.Start) {
		return nil, errors.New("perf: period end must be after start")
	}

	atEnd, err := ledger.Compute(fills, &ledger.AsOf{Cutoff: p.End})
	if err != nil {
		return nil, err
	}
	atStart, err := ledger.Compute(fills, &ledger.AsOf{Cutoff: p.Start})
	if err != nil {
		return nil, err
	}

	out := make(map[ledger.GroupKey]Attribution, len(atEnd))
	for key, end := range atEnd {
		a := Attribution{
			Key:           key,
			RealizedGross: end.RealizedGross,
			RealizedFees:  end.RealizedFees,
			RealizedNet:   end.RealizedNet,
		}
		if start, ok := atStart[key]; ok {
			a.RealizedGross = a.RealizedGross.Sub(start.RealizedGross)
			a.RealizedFees = a.RealizedFees.Sub(start.RealizedFees)
			a.RealizedNet = a.RealizedNet.Sub(start.RealizedNet)
		}
		if mark, ok := marks[key.Symbol]; ok {
			a.Unrealized = end.Unrealized(mark)
		}
		out[key] = a
	}
	return out, nil
}

// MonthlyID is the snapshot identifier for one (uid, strategy) month.
func MonthlyID(uid, strategyID string, month time.Time) string {
	return fmt.Sprintf("%s__%s__%s", uid, strategyID, month.UTC().Format("2006-01"))
}
