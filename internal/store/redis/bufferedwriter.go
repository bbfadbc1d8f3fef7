package redis

import (
	"context"
	"log"
	"sync"

	"tradecore/internal/model"
)

// BufferedWriter wraps a Writer with a circuit breaker. While the
// circuit is open, candle writes are buffered locally and replayed
// when the circuit closes again, so a Redis outage loses nothing
// until the buffer cap is hit.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []model.Candle
	maxBuf int

	OnBuffer func()          // called when a write is buffered
	OnFlush  func(count int) // called after replaying buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping w. maxBufferSize
// bounds the local buffer; the oldest entry is dropped on overflow.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.Candle, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Run drains final candles from candleCh through the circuit breaker
// until ctx is cancelled or the channel closes.
func (bw *BufferedWriter) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			if !c.Final {
				continue
			}
			if err := bw.WriteCandle(c); err != nil {
				log.Printf("[buffered-writer] candle write error for %s: %v", c.Key(), err)
			}
		}
	}
}

// WriteCandle writes a final candle through the circuit breaker,
// buffering it locally when the circuit is open. A write failure is
// buffered too; it counts toward opening the circuit.
func (bw *BufferedWriter) WriteCandle(c model.Candle) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeCandle(bw.ctx, c)
	})
	if err != nil {
		bw.bufferCandle(c)
		if err == ErrCircuitOpen {
			return nil // buffered, not lost
		}
	}
	return err
}

func (bw *BufferedWriter) bufferCandle(c model.Candle) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, c)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered candles through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]model.Candle, 0, 256)
	bw.mu.Unlock()

	for _, c := range toFlush {
		bw.writer.writeCandle(bw.ctx, c)
	}

	log.Printf("[buffered-writer] flushed %d buffered candles", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered candles awaiting flush.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
