// Package indicator provides technical indicator calculations over
// candle closes. All updates are O(1); no history scans.
package indicator

import "tradecore/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name, e.g. "SMA_20".
	Name() string

	// Update feeds a new final candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current value. Zero until Ready.
	Value() float64

	// Ready reports whether enough data has been accumulated.
	Ready() bool
}
