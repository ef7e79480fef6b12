package gateway

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a ring of recent end-to-end latency samples
// (bar timestamp → envelope fan-out, in ms) and reports distribution
// stats for the metrics broadcast. Safe for concurrent use.
type LatencyTracker struct {
	mu   sync.Mutex
	ring []float64 // ms
	next int
	n    int // filled entries, <= len(ring)
}

// NewLatencyTracker creates a tracker over the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{ring: make([]float64, capacity)}
}

// Record adds one latency sample in milliseconds, overwriting the
// oldest sample once the ring is full.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	lt.ring[lt.next] = ms
	lt.next = (lt.next + 1) % len(lt.ring)
	if lt.n < len(lt.ring) {
		lt.n++
	}
	lt.mu.Unlock()
}

// RecordSince records the elapsed time from origin to now.
func (lt *LatencyTracker) RecordSince(origin time.Time) {
	lt.Record(float64(time.Since(origin).Microseconds()) / 1000.0)
}

// Count reports how many samples the ring currently holds.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.n
}

// Percentiles returns the p50, p95 and p99 of the retained samples,
// or zeros when nothing has been recorded yet.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	sorted := lt.snapshot()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	return quantile(sorted, 0.50), quantile(sorted, 0.95), quantile(sorted, 0.99)
}

// Mean returns the average of the retained samples, 0 when empty.
func (lt *LatencyTracker) Mean() float64 {
	vals := lt.snapshot()
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// snapshot copies the filled portion of the ring under the lock so the
// sort never blocks recorders. Order does not matter to the callers.
func (lt *LatencyTracker) snapshot() []float64 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	out := make([]float64, lt.n)
	copy(out, lt.ring[:lt.n])
	return out
}

// quantile linearly interpolates the q-th quantile of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := q * float64(n-1)
	lo := int(rank)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}
