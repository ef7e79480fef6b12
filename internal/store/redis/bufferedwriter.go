package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"laguerre-systemv1/internal/model"
)

// pendingWrite represents a write that was buffered during circuit-open
// state.
type pendingWrite struct {
	WriteType string // "bar", "results"
	Data      []byte // JSON-encoded payload
}

// BufferedWriter wraps a Redis Writer with a circuit breaker. During
// circuit-open state, writes are buffered locally and flushed when the
// circuit closes again. Live preview results are never buffered — a
// stale preview is worthless by the time the circuit recovers.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteBar writes a completed bar through the circuit breaker. If the
// circuit is open, the write is buffered locally.
func (bw *BufferedWriter) WriteBar(bar model.Candle) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteBar(bw.ctx, bar)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("bar", bar)
		return nil // buffered, not lost
	}
	return err
}

// WriteResultBatch writes a filter result batch through the circuit
// breaker. If the circuit is open, confirmed results are buffered for
// replay; live previews are dropped.
func (bw *BufferedWriter) WriteResultBatch(ctx context.Context, results []model.FilterResult) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteResultBatch(ctx, results)
	})
	if err == ErrCircuitOpen {
		confirmed := results[:0:0]
		for i := range results {
			if results[i].Live {
				continue
			}
			confirmed = append(confirmed, results[i])
		}
		if len(confirmed) > 0 {
			bw.bufferWrite("results", confirmed)
		}
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	for _, pw := range toFlush {
		if err := bw.replay(pw); err != nil {
			log.Printf("[buffered-writer] flush %s error: %v", pw.WriteType, err)
		}
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// replay re-issues one buffered write against the underlying writer.
func (bw *BufferedWriter) replay(pw pendingWrite) error {
	switch pw.WriteType {
	case "bar":
		var bar model.Candle
		if json.Unmarshal(pw.Data, &bar) != nil {
			return nil
		}
		return bw.writer.WriteBar(bw.ctx, bar)
	case "results":
		var results []model.FilterResult
		if json.Unmarshal(pw.Data, &results) != nil {
			return nil
		}
		return bw.writer.WriteResultBatch(bw.ctx, results)
	}
	return nil
}

// PendingCount returns the number of buffered writes waiting to be
// flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}

// Close closes the underlying Redis writer.
func (bw *BufferedWriter) Close() error {
	return bw.writer.Close()
}
