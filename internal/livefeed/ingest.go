// Package livefeed connects to the feed vendor's bar WebSocket and pushes
// candles into the filter pipeline.
//
// The wire format is plain JSON, one message per frame. Bar messages carry
// a tf field and map directly onto model.Candle:
//
//	{"symbol":"EURUSD","tf":3600,"ts":"...","open":108550,"high":108720,"low":108490,"close":108660,"volume":1284,"forming":true}
//
// Quote messages carry bid/ask instead of tf and refresh the forming bar
// between vendor bar snapshots:
//
//	{"symbol":"EURUSD","bid":108655,"ask":108665,"quote_ts":"..."}
//
// Prices are int64 points (1 price unit = 100000 points), same as storage.
package livefeed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/ringbuf"

	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 10 * time.Second
	pongWait          = 3 * heartbeatInterval
)

// IngestConfig holds configuration for the live WS ingest.
type IngestConfig struct {
	// URL of the vendor bar stream, e.g. "wss://feed.vendor.com/v1/stream"
	URL string

	// Credentials from the session handshake. Leave empty for servers that
	// do not authenticate (cmd/feedsim).
	APIKey      string
	AccountID   string
	AccessToken string
	FeedToken   string

	// Subscription sent after every (re)connect.
	Symbols []string
	TFs     []int

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *IngestConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// subscribeMsg is sent once per connection to select symbols and TFs.
type subscribeMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	TFs     []int    `json:"tfs"`
}

// feedMsg is the union of the two wire message shapes. Bar fields come from
// the embedded Candle; quote messages set bid/ask and leave tf at zero.
type feedMsg struct {
	model.Candle
	Bid     int64     `json:"bid"`
	Ask     int64     `json:"ask"`
	QuoteTS time.Time `json:"quote_ts"`
}

// Ingest streams bars from the vendor WebSocket into a ring buffer.
// Reconnects automatically with exponential backoff; resubscribes after
// every reconnect.
type Ingest struct {
	cfg IngestConfig

	// forming holds the latest forming bar per symbol|tf so that quote
	// messages can refresh it between vendor snapshots. Touched only by
	// the read loop.
	forming map[string]model.Candle

	lastPong atomic.Int64 // unix nanos of the last pong frame

	// Optional hook — called each time a reconnection happens.
	OnReconnect func()
}

// NewIngest creates a new Ingest. Returns an error if the URL is unparseable.
func NewIngest(cfg IngestConfig) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{
		cfg:     cfg,
		forming: make(map[string]model.Candle),
	}, nil
}

// Start connects to the vendor WebSocket and pushes bars into ring.
// Blocks until ctx is cancelled. Returns ErrAuthRejected when the server
// refuses the credentials — the caller should re-login instead of retrying.
func (ing *Ingest) Start(ctx context.Context, ring *ringbuf.Ring) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, ring)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}
		if err == ErrAuthRejected {
			return err
		}

		log.Printf("[livefeed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, ring *ringbuf.Ring) error {
	header := http.Header{}
	if ing.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+ing.cfg.AccessToken)
		header.Set("X-API-Key", ing.cfg.APIKey)
		header.Set("X-Account-ID", ing.cfg.AccountID)
		header.Set("X-Feed-Token", ing.cfg.FeedToken)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrAuthRejected
		}
		return err
	}
	defer conn.Close()

	log.Printf("[livefeed] connected to %s", ing.cfg.URL)

	sub := subscribeMsg{Action: "subscribe", Symbols: ing.cfg.Symbols, TFs: ing.cfg.TFs}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log.Printf("[livefeed] subscribed: %d symbols, TFs %v", len(ing.cfg.Symbols), ing.cfg.TFs)

	ing.lastPong.Store(time.Now().UnixNano())
	conn.SetPongHandler(func(string) error {
		ing.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	// Heartbeat writer. Also owns the shutdown close frame so the
	// connection only ever has one writer after the subscribe.
	hbDone := make(chan struct{})
	defer close(hbDone)
	go ing.heartbeat(ctx, conn, hbDone)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		if string(raw) == "pong" {
			ing.lastPong.Store(time.Now().UnixNano())
			continue
		}
		ing.handleMessage(raw, ring)
	}
}

// heartbeat pings the server every heartbeatInterval and force-closes the
// connection when pongs stop arriving, which bounces the read loop into a
// reconnect.
func (ing *Ingest) heartbeat(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, ing.lastPong.Load())) > pongWait {
				log.Printf("[livefeed] no pong in %s, forcing reconnect", pongWait)
				conn.Close()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (ing *Ingest) handleMessage(raw []byte, ring *ringbuf.Ring) {
	var msg feedMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[livefeed] parse error: %v (raw: %s)", err, truncate(raw, 120))
		return
	}
	if msg.Symbol == "" {
		log.Println("[livefeed] skipping message with empty symbol")
		return
	}

	if msg.TF > 0 {
		key := msg.Symbol + "|" + model.Itoa(msg.TF)
		if msg.Forming {
			ing.forming[key] = msg.Candle
		} else {
			delete(ing.forming, key)
		}
		ing.push(ring, msg.Candle)
		return
	}

	if msg.Bid > 0 && msg.Ask > 0 {
		q := model.Quote{Symbol: msg.Symbol, Bid: msg.Bid, Ask: msg.Ask, QuoteTS: msg.QuoteTS}
		if q.QuoteTS.IsZero() {
			q.QuoteTS = time.Now().UTC()
		}
		ing.applyQuote(ring, q)
		return
	}

	log.Printf("[livefeed] skipping unrecognized message: %s", truncate(raw, 120))
}

// applyQuote folds an intrabar quote into the forming bar of every
// subscribed TF and re-emits the refreshed bars. Quotes that land after a
// bar's window closed are dropped — the vendor's completed bar message is
// authoritative for the final OHLC.
func (ing *Ingest) applyQuote(ring *ringbuf.Ring, q model.Quote) {
	mid := q.Mid()
	for _, tf := range ing.cfg.TFs {
		key := q.Symbol + "|" + model.Itoa(tf)
		bar, ok := ing.forming[key]
		if !ok {
			continue
		}
		if !q.QuoteTS.Before(bar.TS.Add(time.Duration(tf) * time.Second)) {
			continue
		}

		bar.Close = mid
		if mid > bar.High {
			bar.High = mid
		}
		if mid < bar.Low {
			bar.Low = mid
		}
		bar.Volume++
		ing.forming[key] = bar
		ing.push(ring, bar)
	}
}

func (ing *Ingest) push(ring *ringbuf.Ring, bar model.Candle) {
	if !ring.Push(bar) {
		log.Printf("[livefeed] ring full, dropping %s bar for %s", model.Itoa(bar.TF)+"s", bar.Symbol)
	}
}

// Drain pops bars from the ring into out until ctx is cancelled. The ring
// is single-consumer — run exactly one Drain per ring.
func Drain(ctx context.Context, ring *ringbuf.Ring, out chan<- model.Candle) {
	for {
		bar, ok := ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		select {
		case out <- bar:
		case <-ctx.Done():
			return
		}
	}
}
