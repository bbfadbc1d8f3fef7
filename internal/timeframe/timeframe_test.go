package timeframe

import (
	"testing"
	"time"
)

func TestParse_Canonical(t *testing.T) {
	cases := []struct {
		in   string
		want Timeframe
	}{
		{"1s", Timeframe{Second, 1, false}},
		{"30s", Timeframe{Second, 30, false}},
		{"5m", Timeframe{Minute, 5, false}},
		{"1h", Timeframe{Hour, 1, false}},
		{"1d", Timeframe{Day, 1, false}},
		{"1d_session", Timeframe{Day, 1, true}},
		{"1w", Timeframe{Week, 1, false}},
		{"1mo", Timeframe{Month, 1, false}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.in, got, c.want)
		}
		if got.String() != c.in {
			t.Errorf("String() = %q, want %q", got.String(), c.in)
		}
	}
}

func TestParse_Rejected(t *testing.T) {
	for _, in := range []string{"", "m", "7m", "4s", "3h", "2d", "1x", "5m_session"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestBucketStart_IntradayFloorsUTC(t *testing.T) {
	ts := time.Date(2026, 3, 9, 14, 32, 45, 123e6, time.UTC)

	got := MustParse("1m").BucketStart(ts)
	want := time.Date(2026, 3, 9, 14, 32, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("1m bucket = %v, want %v", got, want)
	}

	got = MustParse("5m").BucketStart(ts)
	want = time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("5m bucket = %v, want %v", got, want)
	}

	got = MustParse("1h").BucketStart(ts)
	want = time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("1h bucket = %v, want %v", got, want)
	}
}

func TestBucketEnd_HalfOpenWidth(t *testing.T) {
	tf := MustParse("5m")
	start := tf.BucketStart(time.Date(2026, 3, 9, 14, 32, 45, 0, time.UTC))
	end := tf.BucketEnd(start)
	if end.Sub(start) != 5*time.Minute {
		t.Errorf("bucket width = %v, want 5m", end.Sub(start))
	}
}

func TestBucketStart_DailyMarketTZ(t *testing.T) {
	// 2026-03-09 01:30 UTC is still 2026-03-08 in New York (EST, UTC-5).
	ts := time.Date(2026, 3, 9, 1, 30, 0, 0, time.UTC)
	got := MustParse("1d").BucketStart(ts)
	want := time.Date(2026, 3, 8, 0, 0, 0, 0, MarketLocation()).UTC()
	if !got.Equal(want) {
		t.Errorf("1d bucket = %v, want %v", got, want)
	}
}

func TestBucketStart_SessionDaily(t *testing.T) {
	tf := MustParse("1d_session")

	// 10:00 New York belongs to today's 09:30 session.
	ts := time.Date(2026, 3, 9, 10, 0, 0, 0, MarketLocation())
	got := tf.BucketStart(ts.UTC())
	want := time.Date(2026, 3, 9, 9, 30, 0, 0, MarketLocation()).UTC()
	if !got.Equal(want) {
		t.Errorf("session bucket = %v, want %v", got, want)
	}

	// 09:00 New York is before the open and belongs to yesterday's session.
	ts = time.Date(2026, 3, 9, 9, 0, 0, 0, MarketLocation())
	got = tf.BucketStart(ts.UTC())
	want = time.Date(2026, 3, 8, 9, 30, 0, 0, MarketLocation()).UTC()
	if !got.Equal(want) {
		t.Errorf("pre-open session bucket = %v, want %v", got, want)
	}
}

func TestBucketStart_WeeklyMonday(t *testing.T) {
	// 2026-03-11 is a Wednesday; the week starts Monday 2026-03-09.
	ts := time.Date(2026, 3, 11, 15, 0, 0, 0, MarketLocation())
	got := MustParse("1w").BucketStart(ts.UTC())
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, MarketLocation()).UTC()
	if !got.Equal(want) {
		t.Errorf("1w bucket = %v, want %v", got, want)
	}
}

func TestBucketStart_Monthly(t *testing.T) {
	ts := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	got := MustParse("1mo").BucketStart(ts)
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, MarketLocation()).UTC()
	if !got.Equal(want) {
		t.Errorf("1mo bucket = %v, want %v", got, want)
	}
	end := MustParse("1mo").BucketEnd(got)
	wantEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, MarketLocation()).UTC()
	if !end.Equal(wantEnd) {
		t.Errorf("1mo end = %v, want %v", end, wantEnd)
	}
}

func TestParseList(t *testing.T) {
	tfs, err := ParseList("1m, 5m,1d")
	if err != nil {
		t.Fatal(err)
	}
	if len(tfs) != 3 {
		t.Fatalf("expected 3 timeframes, got %d", len(tfs))
	}
	if _, err := ParseList("1m,bogus"); err == nil {
		t.Error("expected error for invalid list entry")
	}
}
