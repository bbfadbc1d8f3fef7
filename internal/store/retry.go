// Package store holds persistence helpers shared by the concrete
// backends (sqlite, redis, ndjson).
package store

import (
	"context"
	"math/rand"
	"time"
)

// Retry policy for transient store errors: exponential backoff with
// full jitter, capped, bounded attempts. Writes that exhaust the
// policy surface the last error to the caller.
const (
	retryBase   = 250 * time.Millisecond
	retryCap    = 5 * time.Second
	retryMaxTry = 6
)

// Retry runs op until it succeeds, the attempts are exhausted, or ctx
// is done. The delay before attempt n is uniform in [0, min(cap, base*2^n)].
func Retry(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < retryMaxTry; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
	}
	return err
}

func retryDelay(attempt int) time.Duration {
	d := retryBase << uint(attempt)
	if d > retryCap || d <= 0 {
		d = retryCap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
