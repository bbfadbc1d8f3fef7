package config

import "testing"

func TestLoad_EmitCandleUpdates(t *testing.T) {
	t.Setenv("STREAM_URL", "ws://localhost:9001/ws")

	if cfg := Load(); cfg.EmitUpdates {
		t.Error("EmitUpdates must default to false")
	}

	t.Setenv("EMIT_CANDLE_UPDATES", "true")
	if cfg := Load(); !cfg.EmitUpdates {
		t.Error("EMIT_CANDLE_UPDATES=true not honored")
	}

	t.Setenv("EMIT_CANDLE_UPDATES", "junk")
	if cfg := Load(); cfg.EmitUpdates {
		t.Error("invalid EMIT_CANDLE_UPDATES must fall back to false")
	}
}

func TestParseSymbols_Dedup(t *testing.T) {
	c := &Config{SubscribeSymbols: "SPY, QQQ,SPY, ,AAPL"}
	got := c.ParseSymbols()
	want := []string{"SPY", "QQQ", "AAPL"}
	if len(got) != len(want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbols[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
