package model

import (
	"encoding/json"
	"time"
)

// Candle represents an OHLCV candle for one (symbol, timeframe) bucket.
// Start/End are the half-open bucket bounds [Start, End) in UTC.
// VWAP is zero when no volume contributed to the bucket.
type Candle struct {
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Start      time.Time `json:"ts_start_utc"`
	End        time.Time `json:"ts_end_utc"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	VWAP       float64   `json:"vwap,omitempty"`
	TradeCount int       `json:"trade_count"`
	Final      bool      `json:"is_final"`
}

// Key returns a unique key for this candle's partition: "symbol:timeframe".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Timeframe
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// ParseCandle decodes a candle from its NDJSON line representation.
func ParseCandle(line []byte) (Candle, error) {
	var c Candle
	err := json.Unmarshal(line, &c)
	return c, err
}
