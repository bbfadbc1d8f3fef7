package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fill(ts int, side Side, qty, price, fees string) Fill {
	return Fill{
		TenantID:   "t1",
		UID:        "u1",
		StrategyID: "momentum",
		Symbol:     "AAPL",
		Side:       side,
		Qty:        d(qty),
		Price:      d(price),
		Fees:       d(fees),
		Slippage:   decimal.Zero,
		TS:         time.Date(2026, 3, 9, 14, 0, ts, 0, time.UTC),
	}
}

func singleGroup(t *testing.T, groups map[GroupKey]*GroupResult) *GroupResult {
	t.Helper()
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	for _, g := range groups {
		return g
	}
	return nil
}

func TestCompute_CrossThroughZero(t *testing.T) {
	fills := []Fill{
		fill(1, Buy, "10", "100", "1"),
		fill(2, Buy, "10", "110", "1"),
		fill(3, Sell, "15", "120", "1.5"),
		fill(4, Sell, "10", "90", "1"),
		fill(5, Buy, "5", "80", "1"),
	}

	groups, err := Compute(fills, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := singleGroup(t, groups)

	if !g.RealizedGross.Equal(d("200")) {
		t.Errorf("gross = %s, want 200", g.RealizedGross)
	}
	if !g.RealizedFees.Equal(d("5.5")) {
		t.Errorf("fees = %s, want 5.5", g.RealizedFees)
	}
	if !g.RealizedNet.Equal(d("194.5")) {
		t.Errorf("net = %s, want 194.5", g.RealizedNet)
	}
	if !g.PositionQty().IsZero() {
		t.Errorf("position = %s, want 0", g.PositionQty())
	}

	// The 10-lot sell at 90 closes 5 longs and opens a 5-lot short.
	r := g.Fills[3]
	if !r.RealizedGross.Equal(d("-100")) {
		t.Errorf("fill 4 gross = %s, want -100", r.RealizedGross)
	}
	if !r.PositionQtyAfter.Equal(d("-5")) {
		t.Errorf("fill 4 position after = %s, want -5", r.PositionQtyAfter)
	}

	// Fully closed: fee invariant holds.
	var feesPaid decimal.Decimal
	for _, f := range fills {
		feesPaid = feesPaid.Add(f.Fees).Add(f.Slippage)
	}
	if !feesPaid.Equal(g.RealizedFees) {
		t.Errorf("sum of fees paid %s != realized fees %s", feesPaid, g.RealizedFees)
	}
}

func TestCompute_DeterministicAcrossInputOrder(t *testing.T) {
	a := fill(1, Buy, "10", "100", "1")
	a.BrokerFillID = "bf-1"
	b := fill(1, Buy, "10", "110", "1")
	b.BrokerFillID = "bf-2"
	c := fill(2, Sell, "15", "120", "1.5")
	c.BrokerFillID = "bf-3"

	g1, err := Compute([]Fill{a, b, c}, nil)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := Compute([]Fill{c, b, a}, nil)
	if err != nil {
		t.Fatal(err)
	}

	r1, r2 := singleGroup(t, g1), singleGroup(t, g2)
	if !r1.RealizedNet.Equal(r2.RealizedNet) {
		t.Errorf("net differs by input order: %s vs %s", r1.RealizedNet, r2.RealizedNet)
	}
	// FIFO must have consumed the bf-1 lot first in both runs.
	if !r1.Fills[2].RealizedGross.Equal(r2.Fills[2].RealizedGross) {
		t.Errorf("closing attribution differs: %s vs %s",
			r1.Fills[2].RealizedGross, r2.Fills[2].RealizedGross)
	}
}

func TestCompute_AsOfCutoff(t *testing.T) {
	fills := []Fill{
		fill(1, Buy, "10", "100", "0"),
		fill(5, Sell, "10", "120", "0"),
	}
	cutoff := fills[1].TS

	exclusive, err := Compute(fills, &AsOf{Cutoff: cutoff})
	if err != nil {
		t.Fatal(err)
	}
	g := singleGroup(t, exclusive)
	if !g.RealizedNet.IsZero() {
		t.Errorf("exclusive cutoff realized = %s, want 0", g.RealizedNet)
	}
	if !g.PositionQty().Equal(d("10")) {
		t.Errorf("exclusive cutoff position = %s, want 10", g.PositionQty())
	}

	inclusive, err := Compute(fills, &AsOf{Cutoff: cutoff, Inclusive: true})
	if err != nil {
		t.Fatal(err)
	}
	g = singleGroup(t, inclusive)
	if !g.RealizedNet.Equal(d("200")) {
		t.Errorf("inclusive cutoff realized = %s, want 200", g.RealizedNet)
	}
}

func TestCompute_Unrealized(t *testing.T) {
	fills := []Fill{fill(1, Buy, "10", "100", "10")} // fpu = 1

	groups, err := Compute(fills, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := singleGroup(t, groups)

	// Effective open price is 101; marking at 105 leaves 4/unit.
	if u := g.Unrealized(d("105")); !u.Equal(d("40")) {
		t.Errorf("unrealized = %s, want 40", u)
	}

	short, err := Compute([]Fill{fill(1, Sell, "10", "100", "10")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	g = singleGroup(t, short)
	// Short effective price 99; mark 95 gains 4/unit.
	if u := g.Unrealized(d("95")); !u.Equal(d("40")) {
		t.Errorf("short unrealized = %s, want 40", u)
	}
}

func TestCompute_OptionMultiplier(t *testing.T) {
	open := fill(1, Buy, "2", "5.00", "0")
	open.Symbol = "AAPL  261218C00150000"
	closeF := fill(2, Sell, "2", "7.50", "0")
	closeF.Symbol = open.Symbol

	groups, err := Compute([]Fill{open, closeF}, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := singleGroup(t, groups)

	// 2 contracts * $2.50 * 100 multiplier.
	if !g.RealizedGross.Equal(d("500")) {
		t.Errorf("gross = %s, want 500", g.RealizedGross)
	}
}

func TestCompute_MultiplierOverride(t *testing.T) {
	open := fill(1, Buy, "1", "10", "0")
	open.ContractMultiplier = 50
	closeF := fill(2, Sell, "1", "12", "0")
	closeF.ContractMultiplier = 50

	groups, err := Compute([]Fill{open, closeF}, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := singleGroup(t, groups)
	if !g.RealizedGross.Equal(d("100")) {
		t.Errorf("gross = %s, want 100", g.RealizedGross)
	}
}

func TestCompute_RejectsInvalidFill(t *testing.T) {
	bad := fill(1, Buy, "10", "100", "1")
	bad.Qty = d("0")
	if _, err := Compute([]Fill{bad}, nil); err == nil {
		t.Error("expected error for zero qty")
	}

	bad = fill(1, "hold", "10", "100", "1")
	if _, err := Compute([]Fill{bad}, nil); err == nil {
		t.Error("expected error for bad side")
	}

	bad = fill(1, Sell, "10", "100", "-1")
	if _, err := Compute([]Fill{bad}, nil); err == nil {
		t.Error("expected error for negative fees")
	}
}

func TestCompute_GroupsAreIndependent(t *testing.T) {
	a := fill(1, Buy, "10", "100", "0")
	b := fill(2, Sell, "10", "120", "0")
	b.StrategyID = "meanrev" // different group: no match against a

	groups, err := Compute([]Fill{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	for _, g := range groups {
		if !g.RealizedNet.IsZero() {
			t.Errorf("group %s realized = %s, want 0 (nothing closed)", g.Key, g.RealizedNet)
		}
	}
}

func TestParseOCC(t *testing.T) {
	oc, ok := ParseOCC("AAPL  261218C00150000")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if oc.Root != "AAPL" || !oc.Call {
		t.Errorf("root/call = %s/%v, want AAPL/true", oc.Root, oc.Call)
	}
	if !oc.Strike.Equal(d("150")) {
		t.Errorf("strike = %s, want 150", oc.Strike)
	}
	if oc.Expiry != time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC) {
		t.Errorf("expiry = %v", oc.Expiry)
	}

	if _, ok := ParseOCC("SPY261218P00480000"); !ok {
		t.Error("unpadded root should parse")
	}
	for _, s := range []string{"AAPL", "", "AAPL  261318X00150000", "TOOLONGROOT261218C00150000"} {
		if _, ok := ParseOCC(s); ok {
			t.Errorf("ParseOCC(%q) should fail", s)
		}
	}
}

func TestDecimalFromFloat_ExactStringForm(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{200.1, "200.1"},
		{0.005, "0.005"},
		{123.45, "123.45"},
		{0, "0"},
	}
	for _, tc := range cases {
		got := DecimalFromFloat(tc.in)
		if got.String() != tc.want {
			t.Errorf("DecimalFromFloat(%v) = %s, want %s", tc.in, got, tc.want)
		}
		if !got.Equal(d(tc.want)) {
			t.Errorf("DecimalFromFloat(%v) != RequireFromString(%q)", tc.in, tc.want)
		}
	}
}
