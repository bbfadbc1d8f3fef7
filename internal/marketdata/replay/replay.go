// Package replay re-emits archived candles for deterministic backfill
// and backtesting. Candles come from the NDJSON archive in event-time
// order and can be played back at any speed.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/store/ndjson"
)

// Replayer reads archived candles and replays them into a channel.
type Replayer struct {
	store *ndjson.Store
}

// New creates a Replayer backed by an NDJSON archive.
func New(store *ndjson.Store) *Replayer {
	return &Replayer{store: store}
}

// Run replays all candles for the given symbols and timeframes between
// from and to (inclusive days), emitting them into outCh in event-time
// order. speed controls playback: 1.0 = real-time gaps, 0 = as fast as
// possible. Every emitted candle is final; consumers downstream of the
// aggregator see the same stream live and replayed.
func (r *Replayer) Run(ctx context.Context, symbols, timeframes []string, from, to time.Time, speed float64, outCh chan<- model.Candle) error {
	var all []model.Candle
	for _, tf := range timeframes {
		for _, sym := range symbols {
			cs, err := r.store.ReadCandleRange(tf, sym, from, to)
			if err != nil {
				return err
			}
			all = append(all, cs...)
		}
	}

	if len(all) == 0 {
		log.Println("[replay] no archived candles in range")
		return nil
	}

	// Interleaved across symbols and timeframes; restore event order.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})

	log.Printf("[replay] loaded %d candles (%d symbols, %d timeframes), speed=%.1fx",
		len(all), len(symbols), len(timeframes), speed)

	var prev time.Time
	emitted := 0
	for _, c := range all {
		if speed > 0 && !prev.IsZero() {
			gap := c.Start.Sub(prev)
			if gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				// Cap to avoid very long waits across session gaps.
				if scaled > 5*time.Second {
					scaled = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prev = c.Start

		c.Final = true
		select {
		case outCh <- c:
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return ctx.Err()
		}
		emitted++
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return nil
}
