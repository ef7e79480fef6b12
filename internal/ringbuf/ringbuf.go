// Package ringbuf implements a lock-free single-producer
// single-consumer queue of bars. The feed socket goroutine pushes,
// the filter loop pops; neither ever blocks the other.
package ringbuf

import (
	"math/bits"
	"sync/atomic"

	"laguerre-systemv1/internal/model"
)

// Ring is a fixed-capacity SPSC queue of Candle values. Capacity is a
// power of two so index wrapping is a bitwise and. Exactly one
// goroutine may call Push and exactly one may call Pop/PopBatch.
type Ring struct {
	buf  []model.Candle
	mask uint64

	// Producer and consumer cursors live on separate cache lines so
	// the two sides do not false-share.
	_    [64]byte
	w    atomic.Uint64 // producer cursor
	_    [64]byte
	r    atomic.Uint64 // consumer cursor
	_    [64]byte
	lost atomic.Uint64 // pushes rejected while full
}

// New creates a ring holding at least capacity bars (rounded up to a
// power of two, minimum 2).
func New(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	size := 1 << bits.Len(uint(capacity-1))
	return &Ring{
		buf:  make([]model.Candle, size),
		mask: uint64(size - 1),
	}
}

// Push enqueues a bar. Returns false without writing when the ring is
// full; the drop is counted in Overflow.
func (rb *Ring) Push(c model.Candle) bool {
	w := rb.w.Load()
	if w-rb.r.Load() >= uint64(len(rb.buf)) {
		rb.lost.Add(1)
		return false
	}
	rb.buf[w&rb.mask] = c
	rb.w.Store(w + 1)
	return true
}

// Pop dequeues the oldest bar, false when empty.
func (rb *Ring) Pop() (model.Candle, bool) {
	r := rb.r.Load()
	if r >= rb.w.Load() {
		return model.Candle{}, false
	}
	c := rb.buf[r&rb.mask]
	rb.r.Store(r + 1)
	return c, true
}

// PopBatch dequeues up to len(dst) bars in one pass and returns how
// many were written. Cheaper than repeated Pop when the consumer is
// catching up.
func (rb *Ring) PopBatch(dst []model.Candle) int {
	r := rb.r.Load()
	avail := rb.w.Load() - r
	n := uint64(len(dst))
	if avail < n {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = rb.buf[(r+i)&rb.mask]
	}
	if n > 0 {
		rb.r.Store(r + n)
	}
	return int(n)
}

// Len reports the number of queued bars.
func (rb *Ring) Len() int { return int(rb.w.Load() - rb.r.Load()) }

// Cap reports the ring capacity.
func (rb *Ring) Cap() int { return len(rb.buf) }

// Overflow reports how many pushes were dropped against a full ring.
func (rb *Ring) Overflow() uint64 { return rb.lost.Load() }
