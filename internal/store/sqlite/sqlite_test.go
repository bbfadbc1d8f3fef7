package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
	"tradecore/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFills_RoundTripPreservesDecimals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := ledger.Fill{
		TenantID: "t1", UID: "u1", StrategyID: "momentum", RunID: "r1",
		Symbol: "AAPL", Side: ledger.Buy,
		Qty: d("10"), Price: d("187.0001"), Fees: d("1.05"), Slippage: d("0.0001"),
		TS:           time.Date(2026, 3, 9, 14, 30, 0, 123456789, time.UTC),
		OrderID:      "o1",
		BrokerFillID: "b1",
	}
	if err := s.InsertFill(ctx, in); err != nil {
		t.Fatal(err)
	}

	fills, err := s.FillsSince(ctx, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	got := fills[0]
	if got.Price.String() != "187.0001" || got.Fees.String() != "1.05" || got.Slippage.String() != "0.0001" {
		t.Errorf("decimals not exact: %+v", got)
	}
	if !got.TS.Equal(in.TS) {
		t.Errorf("ts = %v, want %v", got.TS, in.TS)
	}
	if got.BrokerFillID != "b1" || got.Side != ledger.Buy {
		t.Errorf("fill = %+v", got)
	}
}

func TestFillsSince_CutoffAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f := ledger.Fill{
			TenantID: "t1", UID: "u1", StrategyID: "m", Symbol: "AAPL",
			Side: ledger.Buy, Qty: d("1"), Price: d("100"),
			Fees: decimal.Zero, Slippage: decimal.Zero,
			TS: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.InsertFill(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	fills, err := s.FillsSince(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2 at or after the cutoff", len(fills))
	}
	if !fills[0].TS.Before(fills[1].TS) {
		t.Error("fills not in ascending order")
	}
}

func TestInsertFill_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	bad := ledger.Fill{Symbol: "AAPL", Side: "HOLD", Qty: d("1"), Price: d("1")}
	if err := s.InsertFill(context.Background(), bad); err == nil {
		t.Error("expected validation error")
	}
}

func TestBreakerEvents_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := model.CircuitBreakerEvent{
		BreakerType: model.BreakerDailyLoss,
		TS:          time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC),
		UserID:      "u1",
		TenantID:    "t1",
		StrategyID:  "momentum",
		Severity:    model.SeverityCritical,
		Message:     "daily loss limit breached",
		Metadata:    map[string]string{"loss_pct": "-2.4"},
	}
	if err := s.RecordEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}

	events, err := s.EventsSince(ctx, ev.TS.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	got := events[0]
	if got.BreakerType != model.BreakerDailyLoss || got.Severity != model.SeverityCritical {
		t.Errorf("event = %+v", got)
	}
	if got.Metadata["loss_pct"] != "-2.4" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestCandleArchive_BatchAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan model.Candle, 8)
	done := make(chan struct{})
	go func() {
		s.RunCandleArchive(ctx, ch)
		close(done)
	}()

	start := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ch <- model.Candle{
			Symbol: "AAPL", Timeframe: "1m",
			Start: start.Add(time.Duration(i) * time.Minute),
			End:   start.Add(time.Duration(i+1) * time.Minute),
			Open:  100, High: 101, Low: 99, Close: 100.5,
			Volume: 10, TradeCount: 4, Final: true,
		}
	}
	// Non-final candles are never archived.
	ch <- model.Candle{Symbol: "AAPL", Timeframe: "1m", Start: start.Add(time.Hour), End: start.Add(time.Hour + time.Minute)}
	close(ch)
	<-done
	cancel()

	got, err := s.ReadCandles(context.Background(), "AAPL", "1m", start.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("candles = %d, want 3", len(got))
	}
	if !got[0].Start.Equal(start) || !got[0].Final {
		t.Errorf("first candle = %+v", got[0])
	}

	last, err := s.LastCandleStart(context.Background(), "AAPL", "1m")
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("last start = %v", last)
	}
}
