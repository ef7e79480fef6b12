package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request.
type SubscribeMsg struct {
	Type    string         `json:"type"`    // "SUBSCRIBE"
	ReqID   string         `json:"reqId"`   // client-generated request ID
	Symbol  string         `json:"symbol"`  // e.g. "GBPJPY"
	TF      int            `json:"tf"`      // timeframe in seconds
	History HistoryRequest `json:"history"` // how many historical bars
	Filters []FilterSpec   `json:"filters"` // filter profile
}

// HistoryRequest specifies how many historical bars to fetch.
type HistoryRequest struct {
	Bars int `json:"bars"`
}

// FilterSpec describes a single filter in the client's profile.
type FilterSpec struct {
	Order  int    `json:"order"`
	Length int    `json:"length"`
	Mode   string `json:"mode,omitempty"`   // adaptive smoothing: "SMA", "EMA", "WILDER", "LWMA", "MEDIAN"
	Period int    `json:"period,omitempty"` // adaptive smoothing period; 0 = fixed gamma
	TF     int    `json:"tf,omitempty"`     // per-filter TF override (seconds)
}

// Config resolves the spec into a filter config. Period > 0 selects
// adaptive mode.
func (s FilterSpec) Config() (laguerre.Config, error) {
	cfg := laguerre.Config{Order: s.Order, Length: s.Length}
	if s.Period > 0 {
		mode, ok := laguerre.ParseSmoothMode(strings.ToUpper(s.Mode))
		if !ok {
			return cfg, fmt.Errorf("unknown smooth mode %q", s.Mode)
		}
		cfg.Adaptive = true
		cfg.SmoothMode = mode
		cfg.SmoothPeriod = s.Period
	}
	return cfg, cfg.Validate()
}

// SpecString returns the engine spec spelling: "ORDER:LENGTH[:MODE:PERIOD]".
func (s FilterSpec) SpecString() string {
	spec := strconv.Itoa(s.Order) + ":" + strconv.Itoa(s.Length)
	if s.Period > 0 {
		spec += ":" + strings.ToUpper(s.Mode) + ":" + strconv.Itoa(s.Period)
	}
	return spec
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type   string `json:"type"` // "UNSUBSCRIBE"
	ReqID  string `json:"reqId"`
	Symbol string `json:"symbol"`
	TF     int    `json:"tf"`
}

// SnapshotResponse is the server → client SNAPSHOT with historical data.
type SnapshotResponse struct {
	Type    string                       `json:"type"` // "SNAPSHOT"
	ReqID   string                       `json:"reqId"`
	Symbol  string                       `json:"symbol"`
	TF      int                          `json:"tf"`
	Bars    []SnapshotBar                `json:"bars"`
	Filters map[string][]SnapshotFilterP `json:"filters"`
}

// SnapshotBar is a single bar in the snapshot, prices in quote units.
type SnapshotBar struct {
	TS     string  `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// SnapshotFilterP is a single filter point in the snapshot.
type SnapshotFilterP struct {
	TS    string  `json:"ts"`
	Value float64 `json:"value"`
	Gamma float64 `json:"gamma"`
	Trend string  `json:"trend"`
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// ── Subscription State ──

// ResultEntry is a resolved filter identity with composite key (name + tf).
type ResultEntry struct {
	Name string
	Spec string
	TF   int
}

// Key returns the composite identity "NAME:TF".
func (e ResultEntry) Key() string {
	return e.Name + ":" + strconv.Itoa(e.TF)
}

// ClientSubscription holds per-(symbol, tf) state for a client.
type ClientSubscription struct {
	Symbol  string
	TF      int
	Filters []FilterSpec
	Entries []ResultEntry // resolved (name, tf) pairs — no collisions
}

// SubKey returns the map key for this subscription.
func (s *ClientSubscription) SubKey() string {
	return s.Symbol + ":" + strconv.Itoa(s.TF)
}

// ResolveResultEntries builds the (name, tf) entries for MTF support.
// Uses composite identity so ALF_4_10@60 and ALF_4_10@300 don't collide.
func ResolveResultEntries(specs []FilterSpec, defaultTF int) []ResultEntry {
	var entries []ResultEntry
	for _, spec := range specs {
		cfg, err := spec.Config()
		if err != nil {
			log.Printf("[subscribe] skipping invalid filter spec %v: %v", spec, err)
			continue
		}
		tf := defaultTF
		if spec.TF > 0 {
			tf = spec.TF
		}
		entries = append(entries, ResultEntry{Name: cfg.Name(), Spec: spec.SpecString(), TF: tf})
	}
	return entries
}

// ── Redis History Fetching ──

// BuildSnapshotFromRedis reads historical bars + filter data from Redis.
func BuildSnapshotFromRedis(ctx context.Context, rdb *goredis.Client, sub *ClientSubscription, barLimit int) (*SnapshotResponse, error) {
	if barLimit <= 0 {
		barLimit = 500
	}
	if barLimit > 1000 {
		barLimit = 1000
	}

	snap := &SnapshotResponse{
		Type:    "SNAPSHOT",
		Symbol:  sub.Symbol,
		TF:      sub.TF,
		Bars:    snapshotBars(ctx, rdb, sub, barLimit),
		Filters: make(map[string][]SnapshotFilterP, len(sub.Entries)),
	}

	// Bar time range, for clamping filter points to the visible window
	timeMin, timeMax := barWindow(snap.Bars, sub.TF)

	// Fetch filter histories using each entry's own TF; the map key is
	// "NAME:TF" so the client knows the filter's computation TF.
	for _, entry := range sub.Entries {
		snap.Filters[entry.Key()] = filterHistory(ctx, rdb, sub.Symbol, entry, barLimit, timeMin, timeMax)
	}

	return snap, nil
}

// snapshotBars reads the newest barLimit bars in chronological order.
func snapshotBars(ctx context.Context, rdb *goredis.Client, sub *ClientSubscription, barLimit int) []SnapshotBar {
	streamKey := fmt.Sprintf("bar:%ds:%s", sub.TF, sub.Symbol)
	payloads := readStreamTail(ctx, rdb, streamKey, "+", barLimit)

	bars := make([]SnapshotBar, 0, len(payloads))
	for _, data := range payloads {
		var c model.Candle
		if err := json.Unmarshal([]byte(data), &c); err != nil || c.TS.IsZero() {
			continue
		}
		bars = append(bars, SnapshotBar{
			TS:     c.TS.UTC().Format(time.RFC3339),
			Open:   model.PointsToPrice(c.Open),
			High:   model.PointsToPrice(c.High),
			Low:    model.PointsToPrice(c.Low),
			Close:  model.PointsToPrice(c.Close),
			Volume: c.Volume,
		})
	}
	return bars
}

// barWindow returns the snapshot's visible time range, padded by one
// bar on each side. Zero times when there are no bars.
func barWindow(bars []SnapshotBar, tf int) (timeMin, timeMax time.Time) {
	if len(bars) == 0 {
		return
	}
	pad := time.Duration(tf) * time.Second
	if t, err := time.Parse(time.RFC3339, bars[0].TS); err == nil {
		timeMin = t.Add(-pad)
	}
	if t, err := time.Parse(time.RFC3339, bars[len(bars)-1].TS); err == nil {
		timeMax = t.Add(pad)
	}
	return
}

// filterHistory reads one filter's stream, keeping only steady
// non-preview points inside the bar window, deduplicated by timestamp.
func filterHistory(ctx context.Context, rdb *goredis.Client, symbol string, entry ResultEntry, limit int, timeMin, timeMax time.Time) []SnapshotFilterP {
	streamKey := fmt.Sprintf("alf:%s:%ds:%s", entry.Name, entry.TF, symbol)
	payloads := readStreamTail(ctx, rdb, streamKey, "+", limit)

	points := make([]SnapshotFilterP, 0, len(payloads))
	for _, data := range payloads {
		var r model.FilterResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			continue
		}
		// Skip warm-up values and previews
		if !r.Ready || r.Live || r.TS.IsZero() {
			continue
		}
		ts := r.TS.UTC()
		if !timeMin.IsZero() && (ts.Before(timeMin) || ts.After(timeMax)) {
			continue
		}
		points = append(points, SnapshotFilterP{
			TS:    ts.Format(time.RFC3339),
			Value: r.Value,
			Gamma: r.Gamma,
			Trend: r.Trend.String(),
		})
	}

	// Deduplicate by timestamp, keeping the LAST value per TS — the
	// stream may hold multiple entries per bar from backfill recomputation.
	seen := make(map[string]int, len(points))
	deduped := make([]SnapshotFilterP, 0, len(points))
	for _, pt := range points {
		if idx, ok := seen[pt.TS]; ok {
			deduped[idx] = pt
		} else {
			seen[pt.TS] = len(deduped)
			deduped = append(deduped, pt)
		}
	}

	// Backfill batch-inserts may leave non-chronological ts within a stream
	sort.Slice(deduped, func(i, j int) bool { return deduped[i].TS < deduped[j].TS })
	return deduped
}

// SendJSON marshals and sends a message to the client's send channel.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[subscribe] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Println("[subscribe] client send buffer full, dropping message")
	}
}

// SendError sends an error response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{
		Type:  "ERROR",
		ReqID: reqID,
		Error: errMsg,
	})
}

// publishNewFilters checks which filters are not yet computed by the
// engine and publishes the full spec set to the config:filters channel.
// Returns true if new filters were added.
func publishNewFilters(ctx context.Context, rdb *goredis.Client, hub *Hub, entries []ResultEntry) bool {
	known := make(map[string]bool)
	var allSpecs []string

	hub.mu.RLock()
	filters := make([]string, len(hub.Filters))
	copy(filters, hub.Filters)
	hub.mu.RUnlock()

	for _, name := range filters {
		// Hub.Filters stores names like "ALF_4_10" or "ALF_4_10_MEDIAN_5"
		// — convert back to the spec spelling "4:10" / "4:10:MEDIAN:5".
		parts := strings.Split(name, "_")
		var spec string
		switch len(parts) {
		case 3:
			spec = parts[1] + ":" + parts[2]
		case 5:
			spec = parts[1] + ":" + parts[2] + ":" + parts[3] + ":" + parts[4]
		default:
			continue
		}
		known[spec] = true
		allSpecs = append(allSpecs, spec)
	}

	hasNew := false
	for _, entry := range entries {
		if !known[entry.Spec] {
			known[entry.Spec] = true
			allSpecs = append(allSpecs, entry.Spec)
			// Also add to hub.Filters so future checks know about it
			hub.mu.Lock()
			hub.Filters = append(hub.Filters, entry.Name)
			hub.mu.Unlock()
			hasNew = true
		}
	}

	if !hasNew {
		return false
	}

	payload := strings.Join(allSpecs, ",")
	log.Printf("[subscribe] publishing new filter config to engine: %s", payload)

	tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Publish(tctx, "config:filters", payload).Err(); err != nil {
		log.Printf("[subscribe] WARNING: failed to publish config:filters: %v", err)
	}
	return true
}

// waitForFilters polls Redis until all subscribed filter streams have
// data, or until the timeout expires. This gives the engine time to
// backfill after a dynamic config reload.
func waitForFilters(ctx context.Context, rdb *goredis.Client, sub *ClientSubscription, timeout time.Duration) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			log.Printf("[subscribe] timed out waiting for filter streams to appear")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			allReady := true
			for _, entry := range sub.Entries {
				key := fmt.Sprintf("alf:%s:%ds:%s", entry.Name, entry.TF, sub.Symbol)
				n, err := rdb.XLen(ctx, key).Result()
				if err != nil || n == 0 {
					allReady = false
					break
				}
			}
			if allReady {
				log.Printf("[subscribe] all %d filter streams ready", len(sub.Entries))
				return
			}
		}
	}
}
