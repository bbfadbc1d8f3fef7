package replay

import (
	"context"
	"testing"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/store/ndjson"
)

func TestRun_ReplaysInEventOrder(t *testing.T) {
	s, err := ndjson.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	base := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	// Write out of order across two symbols.
	for _, c := range []model.Candle{
		{Symbol: "MSFT", Timeframe: "1m", Start: base.Add(time.Minute), End: base.Add(2 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Final: true},
		{Symbol: "AAPL", Timeframe: "1m", Start: base, End: base.Add(time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Final: true},
		{Symbol: "AAPL", Timeframe: "1m", Start: base.Add(2 * time.Minute), End: base.Add(3 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Final: true},
	} {
		if err := s.AppendCandle(c); err != nil {
			t.Fatal(err)
		}
	}

	out := make(chan model.Candle, 8)
	r := New(s)
	err = r.Run(context.Background(), []string{"AAPL", "MSFT"}, []string{"1m"}, base, base, 0, out)
	if err != nil {
		t.Fatal(err)
	}
	close(out)

	var got []model.Candle
	for c := range out {
		got = append(got, c)
	}
	if len(got) != 3 {
		t.Fatalf("candles = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start.Before(got[i-1].Start) {
			t.Errorf("out of order at %d: %v after %v", i, got[i].Start, got[i-1].Start)
		}
	}
	for _, c := range got {
		if !c.Final {
			t.Error("replayed candle not final")
		}
	}
}

func TestRun_EmptyRangeIsNoop(t *testing.T) {
	s, err := ndjson.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	out := make(chan model.Candle, 1)
	if err := New(s).Run(context.Background(), []string{"AAPL"}, []string{"1m"}, time.Now(), time.Now(), 0, out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Error("emitted candles from an empty archive")
	}
}
