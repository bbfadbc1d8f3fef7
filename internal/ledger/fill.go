// Package ledger computes realized and unrealized P&L from an immutable
// stream of fills using FIFO lot matching. All money math uses decimals
// constructed from strings; floats never enter the arithmetic.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DecimalFromFloat converts a float mark to a Decimal through its
// shortest round-trip string form, the only sanctioned bridge from
// float prices into money math.
func DecimalFromFloat(v float64) decimal.Decimal {
	d, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Side of a fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Fill is one executed trade as reported by the execution collaborator.
// Append-only; the ledger never mutates fills.
type Fill struct {
	TenantID   string `json:"tenant_id"`
	UID        string `json:"uid"`
	StrategyID string `json:"strategy_id"`
	RunID      string `json:"run_id,omitempty"`

	Symbol string          `json:"symbol"`
	Side   Side            `json:"side"`
	Qty    decimal.Decimal `json:"qty"`
	Price  decimal.Decimal `json:"price"`
	TS     time.Time       `json:"ts_utc"`

	Fees     decimal.Decimal `json:"fees"`
	Slippage decimal.Decimal `json:"slippage"`

	OrderID      string `json:"order_id,omitempty"`
	BrokerFillID string `json:"broker_fill_id,omitempty"`

	// ContractMultiplier overrides the inferred multiplier when nonzero.
	// Zero means infer: 100 for OCC option symbols, 1 otherwise.
	ContractMultiplier int64 `json:"contract_multiplier,omitempty"`
}

var (
	ErrBadSide    = errors.New("ledger: side must be buy or sell")
	ErrBadQty     = errors.New("ledger: qty must be positive")
	ErrBadPrice   = errors.New("ledger: price must be positive")
	ErrBadFees    = errors.New("ledger: fees and slippage must be non-negative")
	ErrMissingTS  = errors.New("ledger: missing timestamp")
	ErrMissingSym = errors.New("ledger: missing symbol")
)

// Validate checks the fill invariants.
func (f Fill) Validate() error {
	if f.Side != Buy && f.Side != Sell {
		return fmt.Errorf("%w: %q", ErrBadSide, f.Side)
	}
	if !f.Qty.IsPositive() {
		return ErrBadQty
	}
	if !f.Price.IsPositive() {
		return ErrBadPrice
	}
	if f.Fees.IsNegative() || f.Slippage.IsNegative() {
		return ErrBadFees
	}
	if f.TS.IsZero() {
		return ErrMissingTS
	}
	if f.Symbol == "" {
		return ErrMissingSym
	}
	return nil
}

// feesPerUnit returns (fees + slippage) / qty.
func (f Fill) feesPerUnit() decimal.Decimal {
	return f.Fees.Add(f.Slippage).Div(f.Qty)
}

// multiplier resolves the contract multiplier for P&L scaling.
func (f Fill) multiplier() decimal.Decimal {
	if f.ContractMultiplier > 0 {
		return decimal.NewFromInt(f.ContractMultiplier)
	}
	if _, ok := ParseOCC(f.Symbol); ok {
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(1)
}

// GroupKey partitions the ledger; lots never match across groups.
type GroupKey struct {
	TenantID   string
	UID        string
	StrategyID string
	Symbol     string
}

func (k GroupKey) String() string {
	return k.TenantID + "/" + k.UID + "/" + k.StrategyID + "/" + k.Symbol
}

func groupOf(f Fill) GroupKey {
	return GroupKey{TenantID: f.TenantID, UID: f.UID, StrategyID: f.StrategyID, Symbol: f.Symbol}
}

// Lot is the FIFO matching unit. EffectivePrice folds the per-unit open
// cost into the basis: price + fees_per_unit for longs, price -
// fees_per_unit for shorts.
type Lot struct {
	Qty            decimal.Decimal `json:"qty"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	FeesPerUnit    decimal.Decimal `json:"fees_per_unit"`
	TS             time.Time       `json:"ts"`
	TradeID        string          `json:"trade_id"`

	price decimal.Decimal // quoted open price, for gross attribution
	long  bool
}

// Long reports whether this is a long lot.
func (l Lot) Long() bool { return l.long }
