package perf

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mkFill(ts time.Time, side ledger.Side, qty, price, fees string) ledger.Fill {
	return ledger.Fill{
		TenantID: "t1", UID: "u1", StrategyID: "momentum", Symbol: "AAPL",
		Side: side, Qty: d(qty), Price: d(price),
		Fees: d(fees), Slippage: decimal.Zero, TS: ts,
	}
}

func TestAttribute_OpenBeforeCloseInside(t *testing.T) {
	feb := time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	fills := []ledger.Fill{
		mkFill(feb, ledger.Buy, "10", "100", "0"),
		mkFill(mar, ledger.Sell, "10", "120", "0"),
	}

	march := Period{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	attrs, err := Attribute(fills, march, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(attrs) != 1 {
		t.Fatalf("groups = %d, want 1", len(attrs))
	}
	for _, a := range attrs {
		// The close happened in March, so the whole 200 lands there
		// even though the position opened in February.
		if !a.RealizedNet.Equal(d("200")) {
			t.Errorf("march realized = %s, want 200", a.RealizedNet)
		}
	}

	february := Period{
		Start: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	attrs, err = Attribute(fills, february, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range attrs {
		if !a.RealizedNet.IsZero() {
			t.Errorf("february realized = %s, want 0", a.RealizedNet)
		}
	}
}

func TestAttribute_UnrealizedAtEndOnly(t *testing.T) {
	ts := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	fills := []ledger.Fill{mkFill(ts, ledger.Buy, "10", "100", "0")}

	p := Period{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	attrs, err := Attribute(fills, p, map[string]decimal.Decimal{"AAPL": d("110")})
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range attrs {
		if !a.Unrealized.Equal(d("100")) {
			t.Errorf("unrealized = %s, want 100", a.Unrealized)
		}
	}
}

func TestAttribute_RejectsEmptyPeriod(t *testing.T) {
	now := time.Now().UTC()
	if _, err := Attribute(nil, Period{Start: now, End: now}, nil); err == nil {
		t.Error("expected error for zero-width period")
	}
}

func TestMonthlyID(t *testing.T) {
	month := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	got := MonthlyID("u1", "momentum", month)
	if got != "u1__momentum__2026-03" {
		t.Errorf("id = %q", got)
	}
}

func TestComputeFee_SplitsSumExactly(t *testing.T) {
	term := Term{
		FeeRate:     d("0.2"),
		CreatorPct:  d("0.5"),
		PlatformPct: d("0.3"),
		UserPct:     d("0.2"),
	}

	split, err := ComputeFee(d("1234.5678"), term, BasisNetProfitPositive)
	if err != nil {
		t.Fatal(err)
	}
	if !split.FeeAmount.Equal(d("246.91")) {
		t.Errorf("fee = %s, want 246.91", split.FeeAmount)
	}
	sum := split.Creator.Add(split.Platform).Add(split.User)
	if !sum.Equal(split.FeeAmount) {
		t.Errorf("splits sum to %s, fee is %s", sum, split.FeeAmount)
	}
}

func TestComputeFee_NetProfitPositiveClampsLosses(t *testing.T) {
	term := Term{FeeRate: d("0.2"), CreatorPct: d("0.5"), PlatformPct: d("0.3"), UserPct: d("0.2")}

	split, err := ComputeFee(d("-500"), term, BasisNetProfitPositive)
	if err != nil {
		t.Fatal(err)
	}
	if !split.FeeAmount.IsZero() {
		t.Errorf("fee = %s, want 0 on a losing period", split.FeeAmount)
	}

	split, err = ComputeFee(d("-500"), term, BasisNetProfit)
	if err != nil {
		t.Fatal(err)
	}
	if !split.FeeAmount.Equal(d("-100")) {
		t.Errorf("fee = %s, want -100 on raw basis", split.FeeAmount)
	}
}

func TestTerm_Validate(t *testing.T) {
	bad := Term{FeeRate: d("0.2"), CreatorPct: d("0.5"), PlatformPct: d("0.3"), UserPct: d("0.3")}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for pcts summing to 1.1")
	}

	// Tiny representation noise inside the tolerance passes.
	ok := Term{
		FeeRate:     d("0.2"),
		CreatorPct:  d("0.3333333333"),
		PlatformPct: d("0.3333333333"),
		UserPct:     d("0.3333333334"),
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("tolerant sum rejected: %v", err)
	}
}

func TestClassifyDay(t *testing.T) {
	if got := ClassifyDay(d("150"), d("10")); got != DayWin {
		t.Errorf("class = %s, want WIN", got)
	}
	if got := ClassifyDay(d("-150"), d("10")); got != DayLoss {
		t.Errorf("class = %s, want LOSS", got)
	}
	// Band is 10% of fees: |0.9| inside the 1.0 band.
	if got := ClassifyDay(d("0.9"), d("10")); got != DayFlat {
		t.Errorf("class = %s, want FLAT", got)
	}
	// Floor applies when fees are negligible.
	if got := ClassifyDay(d("0.005"), d("0")); got != DayFlat {
		t.Errorf("class = %s, want FLAT under the cent floor", got)
	}
}
