// Package agg builds multi-timeframe OHLCV candles from a stream of ticks
// with watermark-based finalization.
//
// Each (symbol, timeframe) partition tracks a watermark: the monotonic max
// event timestamp observed. Ticks older than watermark minus lateness are
// dropped and counted per partition: a tick too late for 1m that still
// lands inside an open 1d bucket counts one drop for the 1m partition
// and aggregates into 1d. A bucket is finalized when its end falls at or
// before watermark minus lateness, or immediately when a newer bucket opens
// (TradingView-style closure). A late tick that lands inside the lateness
// window after finalization re-emits the candle once more with an updated
// payload; consumers treat the latest final emission as authoritative.
package agg

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/timeframe"
)

// Config configures the aggregator.
type Config struct {
	Timeframes []timeframe.Timeframe
	Lateness   time.Duration

	// EmitUpdates enables one non-final emission per ingested tick for
	// realtime consumers. When false only finals are emitted
	// (deterministic backfill mode).
	EmitUpdates bool

	// FlushInterval is how often Run force-finalizes and evicts by wall
	// clock. Defaults to 500ms.
	FlushInterval time.Duration
}

// partKey identifies a (symbol, timeframe) partition.
type partKey struct {
	symbol string
	tf     string
}

// bucketState holds the in-progress candle for one bucket of a partition.
type bucketState struct {
	tf     timeframe.Timeframe
	candle model.Candle

	pvSum   float64
	vSum    float64
	closeTS time.Time // event time of the tick that set Close

	finalEmitted bool
	dirty        bool // updated since last final emission
}

// partState holds all live buckets plus the watermark for one partition.
type partState struct {
	watermark time.Time
	latest    int64 // unix start of the newest bucket seen
	buckets   map[int64]*bucketState
}

// Aggregator converts ticks into candles across all configured timeframes.
// Safe for concurrent use; each partition's emissions are ordered by
// event time.
type Aggregator struct {
	mu    sync.Mutex
	cfg   Config
	parts map[partKey]*partState

	lateDropped uint64
	parseErrors uint64

	// Metrics hooks (optional, set externally)
	OnLateDrop   func()
	OnParseError func()
	OnEmitDrop   func()
}

// New creates an Aggregator for the configured timeframes.
func New(cfg Config) *Aggregator {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	return &Aggregator{
		cfg:   cfg,
		parts: make(map[partKey]*partState),
	}
}

// LateDropped returns the count of per-partition late rejections: one
// increment for each (tick, timeframe) pair the watermark refused.
func (a *Aggregator) LateDropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lateDropped
}

// ParseErrors returns the count of ticks skipped for failing validation.
func (a *Aggregator) ParseErrors() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.parseErrors
}

// IngestTick incorporates one tick and returns the candles emitted by it,
// ordered by bucket start (finalized rollovers first). Invalid ticks are
// counted and return the validation error; aggregator state is unchanged.
func (a *Aggregator) IngestTick(t model.Tick) ([]model.Candle, error) {
	if err := t.Validate(); err != nil {
		a.mu.Lock()
		a.parseErrors++
		a.mu.Unlock()
		if a.OnParseError != nil {
			a.OnParseError()
		}
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []model.Candle

	for _, tf := range a.cfg.Timeframes {
		pk := partKey{symbol: t.Symbol, tf: tf.String()}
		ps := a.parts[pk]
		if ps == nil {
			ps = &partState{buckets: make(map[int64]*bucketState)}
			a.parts[pk] = ps
		}

		// Late check against the partition watermark.
		if !ps.watermark.IsZero() && t.TS.Before(ps.watermark.Add(-a.cfg.Lateness)) {
			a.dropLate()
			continue
		}

		if t.TS.After(ps.watermark) {
			ps.watermark = t.TS
		}

		start := tf.BucketStart(t.TS)
		su := start.Unix()
		st := ps.buckets[su]

		switch {
		case st != nil:
			a.applyTick(st, t)
			if st.finalEmitted {
				// Late tick inside the lateness window after finalization:
				// re-emit once more with the updated payload.
				out = append(out, a.snapshot(st, true))
				st.dirty = false
			} else if a.cfg.EmitUpdates {
				out = append(out, a.snapshot(st, false))
			}

		case su >= ps.latest:
			// Rollover: finalize every older open bucket immediately.
			out = append(out, a.finalizeOlder(ps, su)...)
			ps.latest = su
			ps.buckets[su] = a.newBucket(tf, start, t)
			if a.cfg.EmitUpdates {
				out = append(out, a.snapshot(ps.buckets[su], false))
			}

		default:
			// Bucket already evicted; tick cannot be applied.
			a.dropLate()
			continue
		}

		// Watermark may now allow finalizing older buckets.
		out = append(out, a.finalizeReady(ps)...)
	}

	return out, nil
}

// dropLate counts one per-partition late rejection. Callers hold mu.
func (a *Aggregator) dropLate() {
	a.lateDropped++
	if a.OnLateDrop != nil {
		a.OnLateDrop()
	}
}

// Flush force-finalizes all buckets whose end is at or before
// now - lateness and returns the emitted candles.
func (a *Aggregator) Flush(now time.Time) []model.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-a.cfg.Lateness)
	var out []model.Candle
	for _, ps := range a.parts {
		for _, st := range sortedBuckets(ps) {
			if !st.candle.End.After(cutoff) && (!st.finalEmitted || st.dirty) {
				out = append(out, a.snapshot(st, true))
				st.finalEmitted = true
				st.dirty = false
			}
		}
	}
	return out
}

// FlushAll finalizes every open bucket regardless of lateness. Used on
// shutdown so no partial candle is lost.
func (a *Aggregator) FlushAll() []model.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []model.Candle
	for _, ps := range a.parts {
		for _, st := range sortedBuckets(ps) {
			if !st.finalEmitted || st.dirty {
				out = append(out, a.snapshot(st, true))
				st.finalEmitted = true
				st.dirty = false
			}
		}
	}
	return out
}

// Evict discards final, clean buckets whose end is at or before
// now - 3*lateness - 60s, bounding memory. Returns the eviction count.
func (a *Aggregator) Evict(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-3*a.cfg.Lateness - 60*time.Second)
	evicted := 0
	for _, ps := range a.parts {
		for su, st := range ps.buckets {
			if st.finalEmitted && !st.dirty && !st.candle.End.After(cutoff) {
				delete(ps.buckets, su)
				evicted++
			}
		}
	}
	return evicted
}

// Run consumes ticks from tickCh, aggregates, and sends emitted candles to
// candleCh. Periodically flushes and evicts by wall clock. Blocks until
// ctx is cancelled or tickCh is closed, flushing open buckets on exit.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, candleCh chan<- model.Candle) {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.emitAll(a.FlushAll(), candleCh)
			return

		case t, ok := <-tickCh:
			if !ok {
				a.emitAll(a.FlushAll(), candleCh)
				return
			}
			candles, err := a.IngestTick(t)
			if err != nil {
				continue
			}
			a.emitAll(candles, candleCh)

		case <-ticker.C:
			now := time.Now().UTC()
			a.emitAll(a.Flush(now), candleCh)
			a.Evict(now)
		}
	}
}

// applyTick merges a tick into a live bucket. Close follows the tick with
// the latest event time seen, so out-of-order ticks inside the window
// never regress the close.
func (a *Aggregator) applyTick(st *bucketState, t model.Tick) {
	c := &st.candle
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	if !t.TS.Before(st.closeTS) {
		c.Close = t.Price
		st.closeTS = t.TS
	}
	c.Volume += t.Size
	c.TradeCount++
	st.pvSum += t.Price * t.Size
	st.vSum += t.Size
	st.dirty = true
}

func (a *Aggregator) newBucket(tf timeframe.Timeframe, start time.Time, t model.Tick) *bucketState {
	st := &bucketState{
		tf:      tf,
		closeTS: t.TS,
		candle: model.Candle{
			Symbol:     t.Symbol,
			Timeframe:  tf.String(),
			Start:      start,
			End:        tf.BucketEnd(start),
			Open:       t.Price,
			High:       t.Price,
			Low:        t.Price,
			Close:      t.Price,
			Volume:     t.Size,
			TradeCount: 1,
		},
		pvSum: t.Price * t.Size,
		vSum:  t.Size,
		dirty: true,
	}
	return st
}

// finalizeOlder finalizes all open buckets older than newStart.
func (a *Aggregator) finalizeOlder(ps *partState, newStart int64) []model.Candle {
	var out []model.Candle
	for _, st := range sortedBuckets(ps) {
		if st.candle.Start.Unix() < newStart && (!st.finalEmitted || st.dirty) {
			out = append(out, a.snapshot(st, true))
			st.finalEmitted = true
			st.dirty = false
		}
	}
	return out
}

// finalizeReady finalizes buckets whose end is at or before
// watermark minus lateness.
func (a *Aggregator) finalizeReady(ps *partState) []model.Candle {
	cutoff := ps.watermark.Add(-a.cfg.Lateness)
	var out []model.Candle
	for _, st := range sortedBuckets(ps) {
		if !st.candle.End.After(cutoff) && (!st.finalEmitted || st.dirty) {
			out = append(out, a.snapshot(st, true))
			st.finalEmitted = true
			st.dirty = false
		}
	}
	return out
}

// snapshot copies the bucket candle with its vwap and finality flag.
func (a *Aggregator) snapshot(st *bucketState, final bool) model.Candle {
	c := st.candle
	if st.vSum > 0 {
		c.VWAP = st.pvSum / st.vSum
	}
	c.Final = final
	return c
}

// sortedBuckets returns a partition's buckets ordered by start time.
func sortedBuckets(ps *partState) []*bucketState {
	states := make([]*bucketState, 0, len(ps.buckets))
	for _, st := range ps.buckets {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].candle.Start.Before(states[j].candle.Start)
	})
	return states
}

// emitAll sends candles to candleCh. Non-blocking to avoid deadlocks; a
// full channel drops the candle and reports it via OnEmitDrop.
func (a *Aggregator) emitAll(candles []model.Candle, candleCh chan<- model.Candle) {
	for _, c := range candles {
		select {
		case candleCh <- c:
		default:
			if a.OnEmitDrop != nil {
				a.OnEmitDrop()
			} else {
				log.Printf("[agg] candleCh full, dropping candle %s ts=%v", c.Key(), c.Start)
			}
		}
	}
}
