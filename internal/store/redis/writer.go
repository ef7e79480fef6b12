package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"laguerre-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: keep roughly 30 days of bars per stream
	streamWindowSecs = 30 * 24 * 3600
	minStreamLen     = 500
	defaultLatestTTL = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes bars and filter results to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// streamMaxLen returns the proportional MAXLEN for a TF stream.
func streamMaxLen(tf int) int64 {
	maxLen := int64(streamWindowSecs/tf) + 100
	if maxLen < minStreamLen {
		maxLen = minStreamLen
	}
	return maxLen
}

// RunBars reads bars from barCh and writes them to Redis. Completed
// bars get the full XADD + SET + PUBLISH pipeline; forming bars are
// published only. Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) RunBars(ctx context.Context, barCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar.Forming {
				w.PublishFormingBar(ctx, bar)
				continue
			}
			if err := w.WriteBar(ctx, bar); err != nil {
				log.Printf("[redis] bar pipeline error for %s: %v", bar.Key(), err)
			}
		}
	}
}

// WriteBar performs pipelined writes for a completed bar:
// XADD to the TF stream, SET latest with TTL, PUBLISH for subscribers.
func (w *Writer) WriteBar(ctx context.Context, bar model.Candle) error {
	streamKey := bar.StreamKey()
	latestKey := "bar:" + model.Itoa(bar.TF) + "s:latest:" + bar.Symbol
	pubsubCh := "pub:" + streamKey

	jsonBytes := bar.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

	pipe := w.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen(bar.TF),
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	return err
}

// PublishFormingBar publishes a forming bar via PubSub ONLY (no XADD).
// Used for live filter peek updates while a bar is still open.
func (w *Writer) PublishFormingBar(ctx context.Context, bar model.Candle) {
	jsonBytes := bar.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
	pubsubCh := "pub:" + bar.StreamKey()
	w.client.Publish(ctx, pubsubCh, jsonData)
}

// WriteResultBatch writes multiple filter results in a single Redis
// pipeline. Confirmed results get XADD + SET + PUBLISH; live previews
// from forming bars are published only (no stream history, no latest
// key). Not-ready confirmed results are skipped entirely.
func (w *Writer) WriteResultBatch(ctx context.Context, results []model.FilterResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	queued := 0
	for i := range results {
		r := &results[i]
		if !r.Ready && !r.Live {
			continue
		}

		jsonBytes := r.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
		pubsubCh := r.PubSubChannel()

		if r.Live {
			pipe.Publish(ctx, pubsubCh, jsonData)
			queued++
			continue
		}

		// Confirmed: XADD + SET + PUBLISH
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: r.StreamKey(),
			MaxLen: streamMaxLen(r.TF),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		latestKey := "alf:" + r.Name + ":" + model.Itoa(r.TF) + "s:latest:" + r.Symbol
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
		pipe.Publish(ctx, pubsubCh, jsonData)
		queued++
	}
	if queued == 0 {
		return nil
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] result batch pipeline error (%d results): %v", len(results), err)
	}
	return err
}

// RegisterSymbols adds symbols to the symbols:enabled set so other
// services can discover what this deployment trades.
func (w *Writer) RegisterSymbols(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	members := make([]interface{}, len(symbols))
	for i, s := range symbols {
		members[i] = s
	}
	return w.client.SAdd(ctx, "symbols:enabled", members...).Err()
}

// LoadSymbolRegistry reads the symbols:enabled set from Redis.
// Returns empty slice if the key doesn't exist.
func (w *Writer) LoadSymbolRegistry(ctx context.Context) ([]string, error) {
	members, err := w.client.SMembers(ctx, "symbols:enabled").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis SMEMBERS symbols:enabled: %w", err)
	}
	return members, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
