package ringbuf

import (
	"testing"
	"time"

	"laguerre-systemv1/internal/model"
)

func bar(symbol string, ts int64) model.Candle {
	return model.Candle{Symbol: symbol, TS: time.Unix(ts, 0).UTC(), Open: ts}
}

func TestRing_FIFOOrder(t *testing.T) {
	rb := New(8)

	for i := int64(1); i <= 5; i++ {
		if !rb.Push(bar("GBPJPY", i)) {
			t.Fatalf("push %d should succeed", i)
		}
	}
	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	for i := int64(1); i <= 5; i++ {
		got, ok := rb.Pop()
		if !ok || got.Open != i {
			t.Fatalf("pop %d: got %v ok=%v", i, got.Open, ok)
		}
	}
	if _, ok := rb.Pop(); ok {
		t.Error("pop on drained ring should fail")
	}
}

func TestRing_CapacityRoundsToPowerOfTwo(t *testing.T) {
	cases := map[int]int{1: 2, 2: 2, 3: 4, 8: 8, 9: 16, 8192: 8192}
	for in, want := range cases {
		if got := New(in).Cap(); got != want {
			t.Errorf("New(%d).Cap() = %d, want %d", in, got, want)
		}
	}
}

func TestRing_FullRejectsAndCounts(t *testing.T) {
	rb := New(2)
	rb.Push(bar("A", 1))
	rb.Push(bar("A", 2))

	if rb.Push(bar("A", 3)) {
		t.Fatal("push into full ring should fail")
	}
	if rb.Overflow() != 1 {
		t.Errorf("Overflow() = %d, want 1", rb.Overflow())
	}

	// Rejected push must not clobber queued bars.
	got, _ := rb.Pop()
	if got.Open != 1 {
		t.Errorf("head after rejected push = %v, want 1", got.Open)
	}
}

func TestRing_WrapAround(t *testing.T) {
	rb := New(4)
	// Cycle through the ring several times its capacity.
	for i := int64(0); i < 20; i++ {
		if !rb.Push(bar("GBPJPY", i)) {
			t.Fatalf("push %d failed with non-full ring", i)
		}
		got, ok := rb.Pop()
		if !ok || got.Open != i {
			t.Fatalf("cycle %d: got %v ok=%v", i, got.Open, ok)
		}
	}
}

func TestRing_PopBatch(t *testing.T) {
	rb := New(8)
	for i := int64(1); i <= 6; i++ {
		rb.Push(bar("GBPJPY", i))
	}

	dst := make([]model.Candle, 4)
	if n := rb.PopBatch(dst); n != 4 {
		t.Fatalf("PopBatch = %d, want 4", n)
	}
	for i, c := range dst {
		if c.Open != int64(i+1) {
			t.Errorf("batch[%d] = %v, want %d", i, c.Open, i+1)
		}
	}

	// Remainder is smaller than dst.
	if n := rb.PopBatch(dst); n != 2 {
		t.Errorf("second PopBatch = %d, want 2", n)
	}
	if n := rb.PopBatch(dst); n != 0 {
		t.Errorf("PopBatch on empty ring = %d, want 0", n)
	}
}

func TestRing_SPSCConcurrent(t *testing.T) {
	rb := New(64)
	const total = 10000

	done := make(chan int64)
	go func() {
		var received, lastSeen int64
		for received < total {
			c, ok := rb.Pop()
			if !ok {
				time.Sleep(time.Microsecond)
				continue
			}
			if c.Open < lastSeen {
				t.Errorf("out of order: %d after %d", c.Open, lastSeen)
				break
			}
			lastSeen = c.Open
			received++
		}
		done <- received
	}()

	var pushed int64
	for pushed < total {
		if rb.Push(bar("GBPJPY", pushed)) {
			pushed++
		}
	}

	if got := <-done; got != total {
		t.Fatalf("consumer received %d of %d", got, total)
	}
}
