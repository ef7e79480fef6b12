package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the filter pipeline from concrete storage
// implementations (Redis, SQLite). Each implementation satisfies one or
// more of these interfaces.

// BarWriter writes finalized bars.
type BarWriter interface {
	// RunBars reads bars from barCh and writes them.
	// Blocks until ctx is cancelled or barCh is closed.
	RunBars(ctx context.Context, barCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// BarReader reads bars for backfill, replay, and backtests.
type BarReader interface {
	// ReadBars reads bars for a specific symbol and TF after a Unix ts.
	ReadBars(symbol string, tf int, afterTS int64) ([]Candle, error)

	// ReadAllBars reads all bars for a given timeframe.
	ReadAllBars(tf int, afterTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// ResultWriter writes filter results.
type ResultWriter interface {
	// WriteResultBatch writes multiple filter results in a single batch.
	WriteResultBatch(ctx context.Context, results []FilterResult) error

	// Close releases underlying resources.
	Close() error
}

// SnapshotWriter persists JSON-encoded engine snapshots. Snapshots
// travel as raw JSON to avoid a model→laguerre→model import cycle.
type SnapshotWriter interface {
	SaveSnapshotJSON(data []byte) error
}

// SnapshotReader loads the most recent JSON-encoded engine snapshot.
// Returns nil, nil if no snapshot exists.
type SnapshotReader interface {
	ReadLatestSnapshotJSON() ([]byte, error)
}

// StreamConsumer consumes bars from a stream (e.g. Redis Streams).
type StreamConsumer interface {
	// ConsumeBars reads bars via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeBars(ctx context.Context, streams []string, out chan<- Candle) error

	// RecoverPending processes any unACKed messages from a previous crash.
	RecoverPending(ctx context.Context, streams []string, out chan<- Candle) error

	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ReplayFromID reads all messages from a stream starting at a given ID.
	ReplayFromID(ctx context.Context, stream, startID string, out chan<- Candle) (string, error)

	// DiscoverBarStreams finds streams matching known TFs and symbols.
	DiscoverBarStreams(ctx context.Context, tfs []int, symbols []string) []string

	// StartPELReclaimer runs periodic reclamation of stale PEL entries.
	StartPELReclaimer(ctx context.Context, streams []string, group, consumer string,
		interval time.Duration, minIdleMs int64, outCh chan<- Candle, onReclaim func(count int))

	// Close releases underlying resources.
	Close() error
}
