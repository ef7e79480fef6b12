package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"laguerre-systemv1/internal/sessions"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// ActiveFilters holds the filter set currently displayed by clients.
type ActiveFilters struct {
	Entries []FilterEntry `json:"entries"`
}

// FilterEntry identifies one displayed filter line.
type FilterEntry struct {
	Name  string `json:"name"` // e.g. "ALF_4_10"
	Spec  string `json:"spec"` // e.g. "4:10:MEDIAN:5"
	TF    int    `json:"tf"`
	Color string `json:"color,omitempty"`
}

// Hub manages WebSocket clients and Redis PubSub fan-out.
// It acts as a compositor, delegating to focused components:
//   - PubSubRouter: Redis subscription + message routing
//   - Broadcaster: envelope construction + client-filtered fan-out
//   - FilterStore: active filter set CRUD + broadcast
type Hub struct {
	Rdb     *goredis.Client
	TFs     []int
	Symbols []string
	Filters []string // filter result names, e.g. "ALF_4_10"

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	activeFilters ActiveFilters

	// End-to-end latency tracker
	Latency *LatencyTracker

	// Sub-components
	Router      *PubSubRouter
	Broadcaster *Broadcaster
	FilterStore *FilterStore
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a new Hub for managing WS clients and PubSub.
func NewHub(rdb *goredis.Client, tfs []int, symbols, filters []string) *Hub {
	h := &Hub{
		Rdb:           rdb,
		TFs:           tfs,
		Symbols:       symbols,
		Filters:       filters,
		clients:       make(map[*Client]bool),
		latest:        make(map[string]latestEntry),
		channelSeqs:   make(map[string]int64),
		replayBufs:    make(map[string]*ReplayBuffer),
		Latency:       NewLatencyTracker(10000), // 10k sample ring buffer
		activeFilters: ActiveFilters{Entries: []FilterEntry{}},
	}
	h.Router = NewPubSubRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	h.FilterStore = NewFilterStore(h, rdb)

	// Restore active filter set from Redis (if previously persisted)
	h.FilterStore.Load(context.Background())

	return h
}

// GetActiveFilters delegates to FilterStore.
func (h *Hub) GetActiveFilters() ActiveFilters { return h.FilterStore.Get() }

// SetActiveFilters delegates to FilterStore.
func (h *Hub) SetActiveFilters(cfg ActiveFilters) { h.FilterStore.Set(cfg) }

// Run starts the PubSub subscription loops. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	go h.Router.RunPattern(ctx)
	h.Router.RunExplicit(ctx)
}

// buildChannels lists the explicit bar channels. Filter channels are
// covered by the pub:alf:* pattern subscription so dynamically added
// filters need no resubscribe.
func (h *Hub) buildChannels() []string {
	channels := make([]string, 0, len(h.TFs)*len(h.Symbols))
	for _, tf := range h.TFs {
		for _, sym := range h.Symbols {
			channels = append(channels, fmt.Sprintf("pub:bar:%ds:%s", tf, sym))
		}
	}
	return channels
}

// broadcast delegates to Broadcaster for client-filtered fan-out.
func (h *Hub) broadcast(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// HandleWSRequest registers an upgraded WebSocket connection with the hub.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]*ClientSubscription),
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// GetLatestAll returns a snapshot of all latest channel data.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the /api/missed REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb := h.replayBufs[channel]
	h.mu.RUnlock()
	if rb == nil {
		return nil
	}

	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// metricsEnvelope builds the periodic metrics push for WS clients.
func (h *Hub) metricsEnvelope(ctx context.Context, start time.Time) []byte {
	now := time.Now()
	m := CollectMetrics(start)
	if v, ok := ReadFilterLatency(ctx, h.Rdb); ok {
		m.FilterMs = v
	}
	if h.Latency != nil {
		m.LatencyP50, m.LatencyP95, m.LatencyP99 = h.Latency.Percentiles()
	}
	envelope, _ := json.Marshal(map[string]interface{}{
		"type":         "metrics",
		"metrics":      m,
		"marketOpen":   sessions.IsMarketOpen(now),
		"marketStatus": sessions.StatusString(now),
	})
	return envelope
}

// StartMetricsBroadcast sends system metrics to all WS clients every 2s.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		envelope := h.metricsEnvelope(ctx, start)
		h.mu.RLock()
		for client := range h.clients {
			client.trySend(envelope)
		}
		h.mu.RUnlock()
	}
}
