package ndjson

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tradecore/internal/model"
)

func testCandle(symbol string, start time.Time) model.Candle {
	return model.Candle{
		Symbol:     symbol,
		Timeframe:  "1m",
		Start:      start,
		End:        start.Add(time.Minute),
		Open:       100,
		High:       101,
		Low:        100,
		Close:      101,
		Volume:     15,
		VWAP:       100.67,
		TradeCount: 3,
		Final:      true,
	}
}

func TestSanitizeSymbol(t *testing.T) {
	cases := map[string]string{
		"AAPL":                "AAPL",
		"BRK.B":               "BRK.B",
		"ES=F":                "ES_F",
		"../../../etc/passwd": ".._.._.._etc_passwd",
		"FOO  BAR":            "FOO_BAR",
	}
	for in, want := range cases {
		if got := SanitizeSymbol(in); got != want {
			t.Errorf("SanitizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAppendCandle_PartitionLayout(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	start := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	if err := s.AppendCandle(testCandle("ES=F", start)); err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(s.Root(), "candles", "1m", "2026", "03", "09", "ES_F.ndjson")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("partition file missing: %v", err)
	}
}

func TestCandleRoundTrip_BitExact(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	start := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	in := testCandle("AAPL", start)
	if err := s.AppendCandle(in); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadCandles("1m", "AAPL", start)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("candles = %d, want 1", len(got))
	}
	if !reflect.DeepEqual(got[0], in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got[0], in)
	}
	if string(got[0].JSON()) != string(in.JSON()) {
		t.Error("serialized forms differ after round trip")
	}
}

func TestReadCandleRange_SpansDays(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	d1 := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{d1, d2} {
		if err := s.AppendCandle(testCandle("AAPL", ts)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ReadCandleRange("1m", "AAPL", d1, d2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("candles = %d, want 2 across the day boundary", len(got))
	}
	if !got[0].Start.Equal(d1) || !got[1].Start.Equal(d2) {
		t.Error("range not in day order")
	}
}

func TestAppendTick_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	tick := model.Tick{
		Symbol: "AAPL",
		TS:     time.Date(2026, 3, 9, 14, 30, 1, 0, time.UTC),
		Price:  187.25,
		Size:   100,
	}
	if err := s.AppendTick(tick); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadTicks("AAPL", tick.TS)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0], tick) {
		t.Errorf("ticks = %+v", got)
	}
}

func TestAppendProposal_SharedDayFile(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ts := time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		p := model.OrderProposal{
			ProposalID: "p" + string(rune('1'+i)),
			IntentID:   "i1",
			CreatedAt:  ts,
			Symbol:     "AAPL",
			Side:       model.SideBuy,
			Quantity:   1,
		}
		if err := s.AppendProposal(p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ReadProposals(ts)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("proposals = %d, want 2 in one day file", len(got))
	}
}

func TestReadCandles_MissingPartitionIsEmpty(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.ReadCandles("1m", "NOPE", time.Now().UTC())
	if err != nil {
		t.Fatalf("missing partition should not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("candles = %d, want 0", len(got))
	}
}
