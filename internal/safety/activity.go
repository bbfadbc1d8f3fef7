package safety

import (
	"sync/atomic"
	"time"
)

// Activity tracks the last marketdata event time, written by the ingest
// pipeline on every accepted tick and read by the readiness evaluator.
// Single-writer mutation, atomic reads.
type Activity struct {
	lastNanos atomic.Int64
}

// Mark records ts if it is newer than the current mark.
func (a *Activity) Mark(ts time.Time) {
	n := ts.UnixNano()
	for {
		cur := a.lastNanos.Load()
		if n <= cur {
			return
		}
		if a.lastNanos.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Last returns the most recent mark, or nil if nothing was marked yet.
func (a *Activity) Last() *time.Time {
	n := a.lastNanos.Load()
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
