package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"laguerre-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// writeJSON sets CORS + content type and encodes v.
func writeJSON(w http.ResponseWriter, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// queryInt reads an integer query parameter clamped to (0, max].
func queryInt(r *http.Request, name string, def, max int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

// queryTF reads the "tf" parameter, defaulting to 1h.
func queryTF(r *http.Request) int {
	tf, _ := strconv.Atoi(r.URL.Query().Get("tf"))
	if tf <= 0 {
		tf = 3600
	}
	return tf
}

// upperBoundFromBefore converts a "before" RFC3339 timestamp to an
// exclusive stream ID upper bound, or "+" when absent/unparseable.
func upperBoundFromBefore(r *http.Request) string {
	s := r.URL.Query().Get("before")
	if s == "" {
		return "+"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return fmt.Sprintf("%d-0", t.UnixMilli()-1)
		}
	}
	return "+"
}

// readStreamTail fetches up to limit newest entries from a stream and
// returns their "data" payloads in chronological order.
func readStreamTail(ctx context.Context, rdb *goredis.Client, key, upperBound string, limit int) []string {
	msgs, err := rdb.XRevRangeN(ctx, key, upperBound, "-", int64(limit)).Result()
	if err != nil {
		return nil
	}
	payloads := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if data, ok := msgs[i].Values["data"].(string); ok {
			payloads = append(payloads, data)
		}
	}
	return payloads
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, ctx context.Context, tfs []int, symbols []string, processStart time.Time) {
	defaultSymbol := func(r *http.Request) string {
		if s := r.URL.Query().Get("symbol"); s != "" {
			return s
		}
		if len(symbols) > 0 {
			return symbols[0]
		}
		return ""
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	})

	// REST: latest values per channel
	mux.HandleFunc("/api/filters/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hub.GetLatestAll())
	})

	// REST: available timeframes
	mux.HandleFunc("/api/tfs", func(w http.ResponseWriter, r *http.Request) {
		tfList := make([]TFInfo, len(tfs))
		for i, tf := range tfs {
			tfList[i] = TFInfo{Seconds: tf, Label: TFLabel(tf)}
		}
		writeJSON(w, tfList)
	})

	// REST: config
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"tfs":     tfs,
			"symbols": symbols,
			"filters": hub.Filters,
		})
	})

	// REST: GET/POST /api/filters/active
	mux.HandleFunc("/api/filters/active", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case "OPTIONS":
			w.WriteHeader(http.StatusOK)

		case "POST":
			var req ActiveFilters
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
				return
			}
			hub.SetActiveFilters(req)
			log.Printf("[gateway] active filter set updated: %d entries", len(req.Entries))
			publishFilterConfig(ctx, rdb, req)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

		default:
			json.NewEncoder(w).Encode(hub.GetActiveFilters())
		}
	})

	// REST: system metrics snapshot
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		m := CollectMetrics(processStart)
		if v, ok := ReadFilterLatency(r.Context(), rdb); ok {
			m.FilterMs = v
		}
		if hub.Latency != nil {
			m.LatencyP50, m.LatencyP95, m.LatencyP99 = hub.Latency.Percentiles()
		}
		writeJSON(w, m)
	})

	// REST: historical bars from Redis streams
	mux.HandleFunc("/api/bars", func(w http.ResponseWriter, r *http.Request) {
		tfVal := queryTF(r)
		limit := queryInt(r, "limit", 200, 1000)
		symbol := defaultSymbol(r)

		streamKey := fmt.Sprintf("bar:%ds:%s", tfVal, symbol)
		payloads := readStreamTail(ctx, rdb, streamKey, upperBoundFromBefore(r), limit)

		bars := make([]BarOut, 0, len(payloads))
		for _, data := range payloads {
			var c model.Candle
			if err := json.Unmarshal([]byte(data), &c); err != nil || c.TS.IsZero() {
				continue
			}
			bars = append(bars, BarOut{
				TS:     c.TS.UTC().Format(time.RFC3339),
				Open:   model.PointsToPrice(c.Open),
				High:   model.PointsToPrice(c.High),
				Low:    model.PointsToPrice(c.Low),
				Close:  model.PointsToPrice(c.Close),
				Volume: c.Volume,
				Symbol: c.Symbol,
				TF:     tfVal,
			})
		}
		writeJSON(w, bars)
	})

	// REST: historical filter values from Redis streams
	mux.HandleFunc("/api/filters/history", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" || r.URL.Query().Get("tf") == "" {
			writeJSON(w, []FilterPoint{})
			return
		}
		tfVal := queryTF(r)
		limit := queryInt(r, "limit", 300, 1000)
		symbol := defaultSymbol(r)

		streamKey := fmt.Sprintf("alf:%s:%ds:%s", name, tfVal, symbol)
		payloads := readStreamTail(ctx, rdb, streamKey, upperBoundFromBefore(r), limit)

		points := make([]FilterPoint, 0, len(payloads))
		for _, data := range payloads {
			var res model.FilterResult
			if err := json.Unmarshal([]byte(data), &res); err != nil {
				continue
			}
			if !res.Ready || res.TS.IsZero() {
				continue
			}
			points = append(points, FilterPoint{
				TS:    res.TS.UTC().Format(time.RFC3339),
				Value: res.Value,
				Gamma: res.Gamma,
				Trend: res.Trend.String(),
			})
		}
		writeJSON(w, points)
	})

	// REST: replay missed envelopes for client gap backfill
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		if channel == "" {
			SetCORS(w)
			http.Error(w, `{"error":"channel is required"}`, http.StatusBadRequest)
			return
		}
		fromSeq, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		toSeq, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if toSeq <= 0 {
			toSeq = hub.GetChannelSeq(channel)
		}

		envelopes := hub.GetReplayRange(channel, fromSeq, toSeq)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = json.RawMessage(e)
		}
		writeJSON(w, map[string]interface{}{
			"channel":   channel,
			"from":      fromSeq,
			"to":        toSeq,
			"envelopes": out,
		})
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status":     "ok",
			"redis":      rdb.Ping(r.Context()).Err() == nil,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// publishFilterConfig pushes the deduplicated filter specs from an
// active-set update to the engine's dynamic reload channel.
func publishFilterConfig(ctx context.Context, rdb *goredis.Client, req ActiveFilters) {
	seen := make(map[string]bool)
	var specs []string
	for _, entry := range req.Entries {
		if entry.Spec == "" || seen[entry.Spec] {
			continue
		}
		seen[entry.Spec] = true
		specs = append(specs, entry.Spec)
	}
	if len(specs) == 0 {
		return
	}

	payload := strings.Join(specs, ",")
	if err := rdb.Publish(ctx, "config:filters", payload).Err(); err != nil {
		log.Printf("[gateway] WARNING: failed to publish config:filters: %v", err)
		return
	}
	log.Printf("[gateway] published filter config to engine: %s", payload)
}
