package model

import (
	"errors"
	"time"
)

// Tick represents a single trade print from the broker stream.
// Timestamps are always UTC.
type Tick struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts_utc"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
}

// Validation errors surfaced at the ingest boundary. They are counted
// and skipped by the pipeline, never logged as errors.
var (
	ErrMissingSymbol = errors.New("tick: missing symbol")
	ErrBadPrice      = errors.New("tick: price must be > 0")
	ErrNegativeSize  = errors.New("tick: size must be >= 0")
	ErrBadTimestamp  = errors.New("tick: timestamp missing or not UTC-parseable")
)

// Validate checks the tick invariants: non-empty symbol, parseable UTC
// timestamp, price > 0 and size >= 0.
func (t *Tick) Validate() error {
	if t.Symbol == "" {
		return ErrMissingSymbol
	}
	if t.TS.IsZero() {
		return ErrBadTimestamp
	}
	if t.Price <= 0 {
		return ErrBadPrice
	}
	if t.Size < 0 {
		return ErrNegativeSize
	}
	return nil
}
