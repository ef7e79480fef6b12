package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"laguerre-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "alfengine"
	ConsumerName  string // unique consumer name, e.g. hostname
	SnapshotKey   string // engine snapshot key, e.g. "alf:snapshot:engine"
}

// Reader reads bars from Redis Streams via consumer groups and manages
// engine snapshots.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
	snapshotKey   string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	r := &Reader{
		client:        client,
		consumerGroup: cfg.ConsumerGroup,
		consumerName:  cfg.ConsumerName,
		snapshotKey:   cfg.SnapshotKey,
	}
	if r.consumerGroup == "" {
		r.consumerGroup = "alfengine"
	}
	if r.consumerName == "" {
		r.consumerName = "worker-1"
	}
	if r.snapshotKey == "" {
		r.snapshotKey = "alf:snapshot:engine"
	}

	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)",
		cfg.Addr, r.consumerGroup, r.consumerName)
	return r, nil
}

// Client returns the underlying Redis client.
func (r *Reader) Client() *goredis.Client { return r.client }

// barFromValues decodes a stream entry's "data" field into a Candle.
func barFromValues(values map[string]interface{}) (model.Candle, bool) {
	data, ok := values["data"].(string)
	if !ok {
		return model.Candle{}, false
	}
	var bar model.Candle
	if err := json.Unmarshal([]byte(data), &bar); err != nil {
		log.Printf("[redis-reader] unmarshal bar error: %v", err)
		return model.Candle{}, false
	}
	return bar, true
}

// forward sends a bar on out, honouring cancellation.
func forward(ctx context.Context, out chan<- model.Candle, bar model.Candle) error {
	select {
	case out <- bar:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const busyGroupErr = "BUSYGROUP Consumer Group name already exists"

// EnsureConsumerGroup creates a consumer group on the given streams if
// it doesn't exist. Uses "$" as start ID (only new messages) for fresh
// groups.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && err.Error() != busyGroupErr {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// EnsureConsumerGroupFrom creates a consumer group starting from a
// specific stream ID. Used for replay after snapshot restore. When the
// group already exists its last-delivered ID is rewound instead.
func (r *Reader) EnsureConsumerGroupFrom(ctx context.Context, stream, startID string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, startID).Err()
	switch {
	case err == nil:
		return nil
	case err.Error() == busyGroupErr:
		return r.client.XGroupSetID(ctx, stream, r.consumerGroup, startID).Err()
	default:
		return fmt.Errorf("xgroup create from %s at %s: %w", stream, startID, err)
	}
}

// ConsumeBars reads bars from Redis Streams using consumer groups.
// Blocks on XREADGROUP and sends parsed bars to the output channel.
// Returns when ctx is cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, streams []string, out chan<- model.Candle) error {
	// XREADGROUP wants [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	for ctx.Err() == nil {
		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				bar, ok := barFromValues(msg.Values)
				if ok {
					if err := forward(ctx, out, bar); err != nil {
						return err
					}
				}
				// ACK regardless — a bad message must not become a poison pill
				r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
	return ctx.Err()
}

// RecoverPending processes any pending (unACKed) messages from a
// previous crash. This ensures at-least-once delivery semantics.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.Candle) error {
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				MinIdle:  0,
				Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-reader] xclaim error on %s: %v", stream, err)
				break
			}

			if err := r.drainClaimed(ctx, stream, r.consumerGroup, claimed, out); err != nil {
				return err
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// drainClaimed forwards claimed messages to out and ACKs each one.
func (r *Reader) drainClaimed(ctx context.Context, stream, group string, claimed []goredis.XMessage, out chan<- model.Candle) error {
	for _, msg := range claimed {
		if bar, ok := barFromValues(msg.Values); ok {
			if err := forward(ctx, out, bar); err != nil {
				return err
			}
		}
		r.client.XAck(ctx, stream, group, msg.ID)
	}
	return nil
}

// ReclaimStaleMessages finds PEL entries idle > minIdleMs across all
// consumers in the group and XCLAIMs them for this consumer. Returns
// reclaimed messages.
func (r *Reader) ReclaimStaleMessages(ctx context.Context, stream, group, consumer string, minIdleMs int64, batchSize int64) ([]goredis.XMessage, error) {
	minIdle := time.Duration(minIdleMs) * time.Millisecond

	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  batchSize,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	// Only steal entries owned by OTHER (presumably dead) consumers.
	var staleIDs []string
	for _, p := range pending {
		if p.Consumer != consumer {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}

	log.Printf("[redis-reader] reclaimed %d stale PEL entries from %s", len(claimed), stream)
	return claimed, nil
}

// StartPELReclaimer runs a periodic background loop that scans for
// stale PEL entries across all streams and reclaims them via XCLAIM.
// Reclaimed messages are parsed and sent to outCh for reprocessing.
// Runs until ctx is cancelled.
func (r *Reader) StartPELReclaimer(ctx context.Context, streams []string, group, consumer string, interval time.Duration, minIdleMs int64, outCh chan<- model.Candle, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		total := 0
		for _, stream := range streams {
			claimed, err := r.ReclaimStaleMessages(ctx, stream, group, consumer, minIdleMs, 50)
			if err != nil {
				log.Printf("[redis-reader] PEL reclaim error on %s: %v", stream, err)
				continue
			}
			if err := r.drainClaimed(ctx, stream, group, claimed, outCh); err != nil {
				return
			}
			total += len(claimed)
		}
		if total > 0 && onReclaim != nil {
			onReclaim(total)
		}
	}
}

// ReadLatestSnapshotJSON loads the engine snapshot from Redis as raw
// JSON. Returns nil, nil if no snapshot exists.
func (r *Reader) ReadLatestSnapshotJSON() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, r.snapshotKey).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot %s: %w", r.snapshotKey, err)
	}
	return []byte(data), nil
}

// SaveSnapshotJSON saves a JSON-encoded engine snapshot to Redis with
// a 24h TTL — snapshots are also in SQLite for durability.
func (r *Reader) SaveSnapshotJSON(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Set(ctx, r.snapshotKey, string(data), 24*time.Hour).Err()
}

// ReplayFromID reads all messages from a stream starting from a given
// ID. Used during restore to replay bars since the last snapshot.
func (r *Reader) ReplayFromID(ctx context.Context, stream, startID string, out chan<- model.Candle) (string, error) {
	lastID := startID
	for {
		results, err := r.client.XRange(ctx, stream, "("+lastID, "+").Result()
		if err != nil {
			return lastID, fmt.Errorf("xrange %s from %s: %w", stream, lastID, err)
		}
		if len(results) == 0 {
			break
		}

		for _, msg := range results {
			lastID = msg.ID
			bar, ok := barFromValues(msg.Values)
			if !ok {
				continue
			}
			if err := forward(ctx, out, bar); err != nil {
				return lastID, err
			}
		}

		if len(results) < 1000 {
			break
		}
	}
	return lastID, nil
}

// DiscoverBarStreams finds bar streams that exist for the given TFs
// and symbols.
func (r *Reader) DiscoverBarStreams(ctx context.Context, tfs []int, symbols []string) []string {
	var streams []string
	for _, tf := range tfs {
		for _, sym := range symbols {
			stream := fmt.Sprintf("bar:%ds:%s", tf, sym)
			if n, err := r.client.Exists(ctx, stream).Result(); err == nil && n > 0 {
				streams = append(streams, stream)
			}
		}
	}
	return streams
}

// SubscribeFormingBars subscribes to the pub:bar:* PubSub pattern and
// feeds forming bars into the output channel. Completed bars arrive
// via the consumer group and are skipped here. Blocks until ctx is
// cancelled.
func (r *Reader) SubscribeFormingBars(ctx context.Context, out chan<- model.Candle) error {
	pubsub := r.client.PSubscribe(ctx, "pub:bar:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var bar model.Candle
			if err := json.Unmarshal([]byte(msg.Payload), &bar); err != nil {
				continue
			}
			if !bar.Forming {
				continue
			}
			select {
			case out <- bar:
			default:
			}
		}
	}
}

// SubscribeChannel subscribes to a Redis Pub/Sub channel. Returns the
// PubSub handle so the caller can listen on .Channel(), or nil when
// the subscription could not be confirmed.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	return r.confirm(ctx, r.client.Subscribe(ctx, channel), channel)
}

// PSubscribePattern pattern-subscribes to Redis Pub/Sub. Used by the
// gateway to bridge every pub:alf:* result channel into its hub.
func (r *Reader) PSubscribePattern(ctx context.Context, pattern string) *goredis.PubSub {
	return r.confirm(ctx, r.client.PSubscribe(ctx, pattern), pattern)
}

func (r *Reader) confirm(ctx context.Context, pubsub *goredis.PubSub, name string) *goredis.PubSub {
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[redis-reader] subscribe to %s failed: %v", name, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// Publish publishes a message to a Redis Pub/Sub channel.
func (r *Reader) Publish(ctx context.Context, channel, message string) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
