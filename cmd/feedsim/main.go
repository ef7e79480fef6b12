// cmd/feedsim — simulated feed vendor WebSocket server.
// Speaks the livefeed wire format so the engine can run in live mode
// without vendor credentials: clients send a subscribe message and
// receive quote, forming-bar, and completed-bar JSON frames.
//
// Two modes:
//   - random walk (default): synthetic prices per subscribed symbol
//   - CSV replay: FEED_CSV replays a recorded OHLCV file bar by bar
//
// Config (env vars):
//
//	FEED_SIM_ADDR     — listen address                    (default: ":8081")
//	SIM_SPEED         — simulated seconds per real second (default: "60")
//	QUOTE_INTERVAL_MS — quote emit interval               (default: "250")
//	FEED_CSV          — OHLCV CSV to replay instead of the random walk
//	FEED_CSV_SYMBOL   — symbol the CSV belongs to         (default: "GBPJPY")
//	FEED_CSV_TF       — TF of the CSV bars in seconds     (default: "3600")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/pricefile"

	"github.com/gorilla/websocket"
)

// subscribeMsg mirrors the livefeed subscription request.
type subscribeMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	TFs     []int    `json:"tfs"`
}

// quoteMsg mirrors the livefeed quote frame.
type quoteMsg struct {
	Symbol  string    `json:"symbol"`
	Bid     int64     `json:"bid"`
	Ask     int64     `json:"ask"`
	QuoteTS time.Time `json:"quote_ts"`
}

// startPrices holds random-walk anchors in points (1 unit = 100000 points).
var startPrices = map[string]int64{
	"GBPJPY": 19_500_000,
	"EURUSD": 104_900,
	"USDJPY": 14_950_000,
	"GBPUSD": 126_500,
	"XAUUSD": 265_000_000,
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type simParams struct {
	speed    float64 // simulated seconds per real second
	interval time.Duration

	csvPath   string
	csvSymbol string
	csvTF     int
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting simulated feed server...")

	addr := getEnv("FEED_SIM_ADDR", ":8081")
	speed, _ := strconv.ParseFloat(getEnv("SIM_SPEED", "60"), 64)
	if speed <= 0 {
		speed = 60
	}
	intervalMs, _ := strconv.Atoi(getEnv("QUOTE_INTERVAL_MS", "250"))
	if intervalMs <= 0 {
		intervalMs = 250
	}
	csvTF, _ := strconv.Atoi(getEnv("FEED_CSV_TF", "3600"))

	params := simParams{
		speed:     speed,
		interval:  time.Duration(intervalMs) * time.Millisecond,
		csvPath:   getEnv("FEED_CSV", ""),
		csvSymbol: getEnv("FEED_CSV_SYMBOL", "GBPJPY"),
		csvTF:     csvTF,
	}
	if params.csvPath != "" {
		log.Printf("[feedsim] CSV replay mode: %s (%s, %ds bars)", params.csvPath, params.csvSymbol, params.csvTF)
	} else {
		log.Printf("[feedsim] random walk mode: speed=%.0fx, quote interval=%s", speed, params.interval)
	}

	http.HandleFunc("/feed", feedHandler(params))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] ✅ listening on %s  (WebSocket: ws://localhost%s/feed)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// feedHandler upgrades the connection, waits for the subscribe message,
// and runs a per-client streamer. Each client gets its own simulation so
// reconnects restart cleanly from a fresh forming bar.
func feedHandler(params simParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		defer conn.Close()
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var sub subscribeMsg
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
			log.Printf("[feedsim] no subscribe message from %s, closing", r.RemoteAddr)
			return
		}
		if len(sub.Symbols) == 0 || len(sub.TFs) == 0 {
			log.Printf("[feedsim] empty subscription from %s, closing", r.RemoteAddr)
			return
		}
		log.Printf("[feedsim] %s subscribed: symbols=%v tfs=%v", r.RemoteAddr, sub.Symbols, sub.TFs)

		// Reader loop for control frames and disconnect detection
		done := make(chan struct{})
		conn.SetReadDeadline(time.Time{})
		conn.SetPingHandler(func(appData string) error {
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
		})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if params.csvPath != "" {
			replayCSV(conn, done, params)
		} else {
			randomWalk(conn, done, params, sub)
		}
		log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// ─── Random walk mode ────────────────────────────────────────────────────────

func randomWalk(conn *websocket.Conn, done <-chan struct{}, params simParams, sub subscribeMsg) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	prices := make(map[string]int64, len(sub.Symbols))
	for _, sym := range sub.Symbols {
		p := startPrices[sym]
		if p == 0 {
			p = 10_000_000
		}
		prices[sym] = p
	}

	// Forming bars per symbol|tf, aligned to the simulated clock
	forming := make(map[string]model.Candle)
	simNow := time.Now().UTC().Truncate(time.Second)

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		simNow = simNow.Add(time.Duration(float64(params.interval) * params.speed))
		n++

		for _, sym := range sub.Symbols {
			prices[sym] = walkPrice(rng, prices[sym])
			mid := prices[sym]

			for _, tf := range sub.TFs {
				key := sym + "|" + strconv.Itoa(tf)
				window := time.Duration(tf) * time.Second
				barTS := simNow.Truncate(window)

				bar, ok := forming[key]
				if ok && bar.TS.Before(barTS) {
					// Window rolled over: close the old bar first
					bar.Forming = false
					if err := writeJSON(conn, &bar); err != nil {
						return
					}
					ok = false
				}
				if !ok {
					bar = model.Candle{
						Symbol: sym, TF: tf, TS: barTS,
						Open: mid, High: mid, Low: mid, Close: mid,
						Volume: 0, Forming: true,
					}
				}
				bar.Close = mid
				if mid > bar.High {
					bar.High = mid
				}
				if mid < bar.Low {
					bar.Low = mid
				}
				bar.Volume++
				forming[key] = bar

				// Forming snapshot every 10th tick; quotes carry the rest
				if n%10 == 0 {
					if err := writeJSON(conn, &bar); err != nil {
						return
					}
				}
			}

			spread := mid / 50000 // ~2 bps
			if spread < 2 {
				spread = 2
			}
			q := quoteMsg{Symbol: sym, Bid: mid - spread/2, Ask: mid + spread/2, QuoteTS: simNow}
			if err := writeJSON(conn, &q); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a ±0.05% random step, floored well above zero.
func walkPrice(rng *rand.Rand, price int64) int64 {
	pct := (rng.Float64()*0.1 - 0.05) / 100.0
	next := price + int64(float64(price)*pct)
	if next < 1000 {
		next = 1000
	}
	return next
}

// ─── CSV replay mode ─────────────────────────────────────────────────────────

// replayCSV streams a recorded bar series: three forming snapshots per
// bar (open, extreme, close) followed by the completed bar. The engine
// sees the same sequence a live vendor would produce.
func replayCSV(conn *websocket.Conn, done <-chan struct{}, params simParams) {
	bars, err := pricefile.ReadBars(params.csvPath, params.csvSymbol, params.csvTF, pricefile.LoadOptions{AllowGaps: true})
	if err != nil {
		log.Printf("[feedsim] CSV load failed: %v", err)
		return
	}
	log.Printf("[feedsim] replaying %d bars from %s", len(bars), params.csvPath)

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()

	for _, bar := range bars {
		phases := []model.Candle{
			{Symbol: bar.Symbol, TF: bar.TF, TS: bar.TS, Open: bar.Open, High: bar.Open, Low: bar.Open, Close: bar.Open, Volume: 1, Forming: true},
			{Symbol: bar.Symbol, TF: bar.TF, TS: bar.TS, Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.High, Volume: bar.Volume / 2, Forming: true},
			bar,
		}
		phases[2].Forming = false

		for i := range phases {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			if err := writeJSON(conn, &phases[i]); err != nil {
				return
			}
		}
	}
	log.Printf("[feedsim] CSV replay complete (%d bars)", len(bars))
	<-done
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
