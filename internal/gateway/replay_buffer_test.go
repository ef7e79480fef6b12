package gateway

import (
	"fmt"
	"testing"
)

func fillBuffer(rb *ReplayBuffer, from, to int64) {
	for seq := from; seq <= to; seq++ {
		rb.Push(seq, []byte(fmt.Sprintf(`{"seq":%d}`, seq)))
	}
}

func TestReplayBuffer_RangeInclusive(t *testing.T) {
	rb := NewReplayBuffer(100)
	fillBuffer(rb, 1, 50)

	got := rb.Range(10, 14)
	if len(got) != 5 {
		t.Fatalf("Range(10,14) returned %d entries, want 5", len(got))
	}
	for i, e := range got {
		want := int64(10 + i)
		if e.Seq != want {
			t.Errorf("entry %d: seq %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_EvictsOldest(t *testing.T) {
	rb := NewReplayBuffer(5)
	fillBuffer(rb, 1, 8)

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	// 1..3 were overwritten; only 4..8 are replayable.
	if got := rb.Range(1, 8); len(got) != 5 || got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("Range(1,8) = seqs %v, want [4..8]", seqsOf(got))
	}
	if got := rb.Range(1, 3); len(got) != 0 {
		t.Errorf("Range(1,3) over evicted entries returned %d, want 0", len(got))
	}
}

func TestReplayBuffer_RangeBeyondNewest(t *testing.T) {
	rb := NewReplayBuffer(10)
	fillBuffer(rb, 1, 4)

	if got := rb.Range(5, 100); len(got) != 0 {
		t.Errorf("Range past newest returned %d entries, want 0", len(got))
	}
}

func TestReplayBuffer_Latest(t *testing.T) {
	rb := NewReplayBuffer(3)
	if _, ok := rb.Latest(); ok {
		t.Error("Latest() on empty buffer reported ok")
	}

	fillBuffer(rb, 1, 7)
	e, ok := rb.Latest()
	if !ok || e.Seq != 7 {
		t.Errorf("Latest() = seq %d ok=%v, want seq 7", e.Seq, ok)
	}
}

func TestReplayBuffer_PushCopiesPayload(t *testing.T) {
	rb := NewReplayBuffer(4)
	payload := []byte(`{"seq":1}`)
	rb.Push(1, payload)
	payload[0] = 'X' // caller reuses its slice

	got := rb.Range(1, 1)
	if len(got) != 1 {
		t.Fatal("expected the pushed entry back")
	}
	if got[0].Data[0] != '{' {
		t.Error("stored payload aliases the caller's slice")
	}
}

func seqsOf(entries []replayEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}
