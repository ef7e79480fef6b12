package gateway

import "sync"

// replayEntry holds a single broadcasted message for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer is a fixed-size circular buffer of recent WS envelopes
// per channel. Supports Range queries for client gap backfill.
// Sequence numbers are assumed monotonically increasing across pushes.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope to the buffer. Overwrites the oldest entry
// when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	// Copy so we don't hold onto the caller's slice
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: cp}
	rb.pos++
	if rb.pos == rb.cap {
		rb.pos = 0
		rb.full = true
	}
	rb.mu.Unlock()
}

// Range returns all entries with seq in [fromSeq, toSeq] (inclusive),
// oldest first. Monotonic seqs let the scan stop at the first entry
// past toSeq.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []replayEntry
	n := rb.len()
	for i := 0; i < n; i++ {
		e := rb.buf[rb.index(i)]
		if e.Seq > toSeq {
			break
		}
		if e.Seq >= fromSeq {
			result = append(result, e)
		}
	}
	return result
}

// Latest returns the most recently pushed entry and true, or false if
// the buffer is empty.
func (rb *ReplayBuffer) Latest() (replayEntry, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	n := rb.len()
	if n == 0 {
		return replayEntry{}, false
	}
	return rb.buf[rb.index(n-1)], true
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
