package gateway

import (
	"math"
	"testing"
)

func TestLatencyTracker_EmptyReportsZeros(t *testing.T) {
	lt := NewLatencyTracker(64)
	p50, p95, p99 := lt.Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker: got (%v,%v,%v), want zeros", p50, p95, p99)
	}
	if lt.Mean() != 0 {
		t.Errorf("empty Mean() = %v, want 0", lt.Mean())
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(64)
	lt.Record(3.25)
	p50, p95, p99 := lt.Percentiles()
	for _, p := range []float64{p50, p95, p99} {
		if p != 3.25 {
			t.Errorf("single sample percentile = %v, want 3.25", p)
		}
	}
}

func TestLatencyTracker_Distribution(t *testing.T) {
	lt := NewLatencyTracker(1000)
	// 1..100 ms uniformly
	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}

	p50, p95, p99 := lt.Percentiles()
	if math.Abs(p50-50.5) > 1 {
		t.Errorf("p50 = %v, want ~50.5", p50)
	}
	if math.Abs(p95-95.05) > 1 {
		t.Errorf("p95 = %v, want ~95.05", p95)
	}
	if math.Abs(p99-99.01) > 1 {
		t.Errorf("p99 = %v, want ~99.01", p99)
	}
	if math.Abs(lt.Mean()-50.5) > 0.01 {
		t.Errorf("Mean() = %v, want 50.5", lt.Mean())
	}
}

func TestLatencyTracker_RingEviction(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 1; i <= 25; i++ {
		lt.Record(float64(i))
	}
	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", lt.Count())
	}
	// Only 16..25 survive; their median is 20.5.
	p50, _, _ := lt.Percentiles()
	if math.Abs(p50-20.5) > 1 {
		t.Errorf("p50 after eviction = %v, want ~20.5", p50)
	}
}

func TestLatencyTracker_CountGrowsToCapacity(t *testing.T) {
	lt := NewLatencyTracker(8)
	for i := 0; i < 5; i++ {
		lt.Record(1)
	}
	if lt.Count() != 5 {
		t.Errorf("Count() = %d, want 5", lt.Count())
	}
	for i := 0; i < 10; i++ {
		lt.Record(1)
	}
	if lt.Count() != 8 {
		t.Errorf("Count() = %d, want capacity 8", lt.Count())
	}
}
