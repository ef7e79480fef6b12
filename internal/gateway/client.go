package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Per-client subscriptions: key = "symbol:tf"
	subMu sync.RWMutex
	subs  map[string]*ClientSubscription
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"initial": true,
		})
		c.trySend(envelope)
	}
}

// trySend queues a message without blocking; a full queue drops it.
func (c *Client) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

// flush writes msg plus everything already queued into one WebSocket
// frame, newline-separated, to cut per-frame overhead under load.
func (c *Client) flush(msg []byte) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(msg)
	for n := len(c.send); n > 0; n-- {
		w.Write([]byte{'\n'})
		w.Write(<-c.send)
	}
	return w.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.flush(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound client message by its "type" field.
func (c *Client) dispatch(msg []byte) {
	var base struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if json.Unmarshal(msg, &base) != nil {
		return
	}

	switch base.Type {
	case "SUBSCRIBE":
		var subMsg SubscribeMsg
		if err := json.Unmarshal(msg, &subMsg); err != nil {
			SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
			return
		}
		// Snapshot building can block on the engine, keep the read loop free.
		go c.handleSubscribe(subMsg)

	case "UNSUBSCRIBE":
		var unsubMsg UnsubscribeMsg
		if err := json.Unmarshal(msg, &unsubMsg); err != nil {
			return
		}
		c.handleUnsubscribe(unsubMsg)

	default:
		if base.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      base.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.trySend(pong)
		}
	}
}

// handleSubscribe processes a SUBSCRIBE message from the client.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	if msg.Symbol == "" || msg.TF <= 0 {
		SendError(c, msg.ReqID, "symbol and tf are required")
		return
	}

	// Resolve filter entries with composite (name, tf) identity
	entries := ResolveResultEntries(msg.Filters, msg.TF)

	sub := &ClientSubscription{
		Symbol:  msg.Symbol,
		TF:      msg.TF,
		Filters: msg.Filters,
		Entries: entries,
	}

	c.subMu.Lock()
	if c.subs == nil {
		c.subs = make(map[string]*ClientSubscription)
	}
	c.subs[sub.SubKey()] = sub
	c.subMu.Unlock()

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Key()
	}
	log.Printf("[subscribe] client subscribed: symbol=%s tf=%d filters=%v",
		msg.Symbol, msg.TF, names)

	// Check if the engine needs new filters
	ctx := context.Background()
	hasNew := publishNewFilters(ctx, c.hub.Rdb, c.hub, entries)

	// Always wait for filter streams to have data before sending the
	// snapshot. New filters need a longer timeout (full recomputation by
	// the engine), known filters a shorter one (just stream readiness).
	if len(sub.Entries) > 0 {
		timeout := 3 * time.Second
		if hasNew {
			timeout = 8 * time.Second
			log.Printf("[subscribe] waiting for engine to compute new filters...")
		}
		waitForFilters(ctx, c.hub.Rdb, sub, timeout)
	}

	barLimit := msg.History.Bars
	if barLimit <= 0 {
		barLimit = 500
	}

	snap, err := BuildSnapshotFromRedis(ctx, c.hub.Rdb, sub, barLimit)
	if err != nil {
		SendError(c, msg.ReqID, "snapshot build failed: "+err.Error())
		return
	}
	snap.ReqID = msg.ReqID

	SendJSON(c, snap)
	log.Printf("[subscribe] sent snapshot: symbol=%s tf=%d bars=%d filters=%d",
		msg.Symbol, msg.TF, len(snap.Bars), len(snap.Filters))
}

// handleUnsubscribe removes a subscription.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	sub := &ClientSubscription{Symbol: msg.Symbol, TF: msg.TF}
	c.subMu.Lock()
	delete(c.subs, sub.SubKey())
	c.subMu.Unlock()

	log.Printf("[subscribe] client unsubscribed: symbol=%s tf=%d", msg.Symbol, msg.TF)
}

// matchesChannel checks if a PubSub channel matches any of this client's
// subscriptions. Returns true if the client should receive this message.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		// No subscriptions yet — receive everything
		return true
	}

	parsed := parseChannel(channel)
	if parsed == nil {
		return true // non-data channel (metrics, config) — always deliver
	}

	for _, sub := range c.subs {
		if sub.wants(parsed) {
			return true
		}
	}
	return false
}

// wants reports whether this subscription covers the parsed channel.
func (sub *ClientSubscription) wants(ch *parsedChannel) bool {
	if sub.Symbol != ch.symbol {
		return false
	}
	switch ch.chType {
	case "bar":
		// Bar channel — must match the subscription's main TF
		return sub.TF == ch.tf
	case "filter":
		// Filter channel — check entries by both name AND TF
		for _, entry := range sub.Entries {
			if entry.Name == ch.filterName && entry.TF == ch.tf {
				return true
			}
		}
	}
	return false
}

// parsedChannel holds the parsed components of a Redis PubSub channel name.
type parsedChannel struct {
	chType     string // "bar", "filter"
	filterName string // for filter channels: "ALF_4_10", "ALF_4_10_MEDIAN_5"
	tf         int    // timeframe in seconds
	symbol     string // "GBPJPY"
}

// parseChannel parses a PubSub channel like "pub:bar:3600s:GBPJPY"
// or "pub:alf:ALF_4_10:3600s:GBPJPY".
func parseChannel(channel string) *parsedChannel {
	parts := strings.Split(channel, ":")
	switch {
	case len(parts) == 4 && parts[0] == "pub" && parts[1] == "bar":
		return &parsedChannel{
			chType: "bar",
			tf:     parseTFStr(parts[2]),
			symbol: parts[3],
		}
	case len(parts) >= 5 && parts[0] == "pub" && parts[1] == "alf":
		return &parsedChannel{
			chType:     "filter",
			filterName: parts[2],
			tf:         parseTFStr(parts[3]),
			symbol:     parts[4],
		}
	}
	return nil
}

// parseTFStr parses "3600s" → 3600.
func parseTFStr(s string) int {
	n := 0
	for _, ch := range strings.TrimSuffix(s, "s") {
		if ch >= '0' && ch <= '9' {
			n = n*10 + int(ch-'0')
		}
	}
	return n
}
