// Package closedetector decides when the official closing price has
// been captured after the 16:00 Eastern close. Prints keep arriving
// for a short while after the bell; once the price stops moving for
// StableFor the session can disconnect, with MaxGrace as the hard
// deadline.
package closedetector

import (
	"log"
	"time"
)

// Detector observes post-close tick prices and reports when the
// session should disconnect.
type Detector struct {
	lastPrice   float64
	stableSince time.Time
	closeTime   time.Time // today's 16:00 Eastern close

	// StableFor is how long the price must remain unchanged to count
	// as the closing price. Default 30s.
	StableFor time.Duration

	// MaxGrace is the hard deadline past closeTime. Default 5m.
	MaxGrace time.Duration
}

// New creates a Detector for the given close time.
func New(closeTime time.Time) *Detector {
	return &Detector{
		closeTime: closeTime,
		StableFor: 30 * time.Second,
		MaxGrace:  5 * time.Minute,
	}
}

// IsPostClose reports whether now is after the close.
func (d *Detector) IsPostClose(now time.Time) bool {
	return now.After(d.closeTime)
}

// Observe records a tick price and returns true when the session
// should disconnect: either the price has been stable for StableFor
// after the close, or the MaxGrace deadline has passed.
func (d *Detector) Observe(price float64, now time.Time) bool {
	if now.After(d.closeTime.Add(d.MaxGrace)) {
		log.Printf("[closedetector] grace period %v elapsed, disconnecting", d.MaxGrace)
		return true
	}

	if !d.IsPostClose(now) {
		d.lastPrice = price
		return false
	}

	if price != d.lastPrice {
		d.lastPrice = price
		d.stableSince = now
		return false
	}

	if d.stableSince.IsZero() {
		d.stableSince = now
		return false
	}

	if now.Sub(d.stableSince) >= d.StableFor {
		log.Printf("[closedetector] price %.4f stable for %v after close, closing price captured",
			d.lastPrice, d.StableFor)
		return true
	}

	return false
}

// ClosingPrice returns the last observed price.
func (d *Detector) ClosingPrice() float64 {
	return d.lastPrice
}
