// Package bus broadcasts candles from the aggregator to the store
// writers, publishers, and the strategy engine.
package bus

import (
	"context"
	"log"
	"sync"

	"tradecore/internal/model"
)

// FanOut broadcasts candles from a single input channel to N output
// channels. A full output channel drops the candle for that consumer so
// a slow writer never blocks the pipeline.
type FanOut struct {
	mu      sync.RWMutex
	subs    []subscriber
	bufSize int

	// OnDrop is called with the subscriber name when a candle is
	// dropped for a slow consumer.
	OnDrop func(name string)
}

type subscriber struct {
	name      string
	ch        chan model.Candle
	finalOnly bool
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe registers a named consumer and returns its channel.
func (f *FanOut) Subscribe(name string) <-chan model.Candle {
	return f.subscribe(name, false)
}

// SubscribeFinal registers a consumer that only receives final candles.
// The strategy engine uses this so non-final update emissions never
// trigger a cycle.
func (f *FanOut) SubscribeFinal(name string) <-chan model.Candle {
	return f.subscribe(name, true)
}

func (f *FanOut) subscribe(name string, finalOnly bool) <-chan model.Candle {
	ch := make(chan model.Candle, f.bufSize)
	f.mu.Lock()
	f.subs = append(f.subs, subscriber{name: name, ch: ch, finalOnly: finalOnly})
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed, then closes every
// subscriber channel.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Candle) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.subs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, s := range f.subs {
				if s.finalOnly && !candle.Final {
					continue
				}
				select {
				case s.ch <- candle:
				default:
					if f.OnDrop != nil {
						f.OnDrop(s.name)
					} else {
						log.Printf("[bus] subscriber %q full, dropping candle %s", s.name, candle.Key())
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports (length, capacity) for one subscriber channel.
// Used for reporting channel saturation.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns saturation stats for every subscriber.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.subs))
	for i, s := range f.subs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
