// Package ringbuf provides a lock-free single-producer single-consumer
// ring buffer for model.Tick. It sits between the network receive loop
// and the candle aggregator so a slow consumer never blocks the socket;
// overflowing pushes are dropped and counted.
package ringbuf

import (
	"sync/atomic"

	"tradecore/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a lock-free SPSC ring buffer for Tick values.
// Size must be a power of two for fast bitwise modulo.
type Ring struct {
	buf  []model.Tick
	mask uint64

	// Separate cache lines prevent false sharing between the producer
	// and consumer indices.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // written by consumer
	_pad2 [cacheLine]byte

	dropped atomic.Uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of
// two, minimum 2.
func New(capacity int) *Ring {
	c := nextPow2(capacity)
	if c < 2 {
		c = 2
	}
	return &Ring{
		buf:  make([]model.Tick, c),
		mask: uint64(c - 1),
	}
}

// Push appends a tick. Returns false and counts a drop if the buffer is
// full; the tick is not written in that case. Non-blocking.
func (r *Ring) Push(t model.Tick) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}

	r.buf[head&r.mask] = t
	r.head.Store(head + 1)
	return true
}

// Pop retrieves the next tick. Returns false if the buffer is empty.
// Non-blocking.
func (r *Ring) Pop() (model.Tick, bool) {
	tail := r.tail.Load()
	head := r.head.Load()

	if tail >= head {
		return model.Tick{}, false
	}

	t := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return t, true
}

// Len returns the current number of queued ticks.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Dropped returns the total number of pushes rejected for a full buffer.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
