package perf

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeBasis selects how realized P&L maps to the fee base.
type FeeBasis string

const (
	// BasisNetProfitPositive clamps losses to zero: no profit, no fee.
	BasisNetProfitPositive FeeBasis = "net_profit_positive"

	// BasisNetProfit charges on the raw realized figure, including
	// negative months (credits).
	BasisNetProfit FeeBasis = "net_profit"
)

// Term is a marketplace revenue-share agreement.
type Term struct {
	FeeRate     decimal.Decimal `json:"fee_rate"`
	CreatorPct  decimal.Decimal `json:"creator_pct"`
	PlatformPct decimal.Decimal `json:"platform_pct"`
	UserPct     decimal.Decimal `json:"user_pct"`
}

// pctTolerance allows for representation noise in stored terms.
var pctTolerance = decimal.RequireFromString("0.000000001")

// Validate checks the percentages sum to 1 within tolerance.
func (t Term) Validate() error {
	sum := t.CreatorPct.Add(t.PlatformPct).Add(t.UserPct)
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(pctTolerance) {
		return fmt.Errorf("perf: revenue share pcts sum to %s, want 1", sum)
	}
	if t.FeeRate.IsNegative() {
		return fmt.Errorf("perf: negative fee rate %s", t.FeeRate)
	}
	for _, p := range []decimal.Decimal{t.CreatorPct, t.PlatformPct, t.UserPct} {
		if p.IsNegative() {
			return fmt.Errorf("perf: negative split pct %s", p)
		}
	}
	return nil
}

// FeeSplit is the deterministic division of a computed fee. The three
// shares always sum exactly to FeeAmount.
type FeeSplit struct {
	FeeAmount decimal.Decimal `json:"fee_amount"`
	Creator   decimal.Decimal `json:"creator"`
	Platform  decimal.Decimal `json:"platform"`
	User      decimal.Decimal `json:"user"`
}

// splitPrecision rounds monetary shares to cents.
const splitPrecision = 2

// ComputeFee applies a term to a period's realized P&L. Creator and
// platform shares round half-up to cents; the user share absorbs the
// remainder so the parts reconcile exactly.
func ComputeFee(realized decimal.Decimal, t Term, basis FeeBasis) (FeeSplit, error) {
	if err := t.Validate(); err != nil {
		return FeeSplit{}, err
	}

	base := realized
	if basis == BasisNetProfitPositive && base.IsNegative() {
		base = decimal.Zero
	}

	fee := base.Mul(t.FeeRate).Round(splitPrecision)
	creator := fee.Mul(t.CreatorPct).Round(splitPrecision)
	platform := fee.Mul(t.PlatformPct).Round(splitPrecision)
	user := fee.Sub(creator).Sub(platform)

	return FeeSplit{
		FeeAmount: fee,
		Creator:   creator,
		Platform:  platform,
		User:      user,
	}, nil
}
