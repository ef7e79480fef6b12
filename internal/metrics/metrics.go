package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the filter engine.
type Metrics struct {
	BarsTotal    prometheus.Counter
	DroppedBars  prometheus.Counter
	WSReconnects prometheus.Counter

	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	ResultLag       prometheus.Gauge

	// Filter engine metrics
	FilterComputeDur prometheus.Histogram
	ResultsTotal     *prometheus.CounterVec // labels: tf
	PeeksTotal       prometheus.Counter
	TrendFlipsTotal  *prometheus.CounterVec // labels: trend

	// Checkpointing
	CheckpointsTotal prometheus.Counter
	CheckpointDur    prometheus.Histogram

	// Ring buffer overflow
	RingBufOverflow prometheus.Counter

	// Stream consumer
	PELMessagesReclaimed prometheus.Counter

	// Redis degradation handling
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Trading session state
	SessionState       prometheus.Gauge       // 0=closed, 1=open
	SessionTransitions *prometheus.CounterVec // labels: type=open|close|ws_disconnect
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func histogram(name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	// Compute is sub-millisecond per bar, so its buckets start at 1µs.
	computeBuckets := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001}

	m := &Metrics{
		BarsTotal:    counter("alfengine_bars_total", "Total completed bars consumed"),
		DroppedBars:  counter("alfengine_dropped_bars_total", "Bars dropped (stale or channel full)"),
		WSReconnects: counter("alfengine_ws_reconnects_total", "Total feed WebSocket reconnection attempts"),

		RedisWriteDur:   histogram("alfengine_redis_write_duration_seconds", "Redis write latency", prometheus.DefBuckets),
		SQLiteCommitDur: histogram("alfengine_sqlite_commit_duration_seconds", "SQLite batch commit latency", prometheus.DefBuckets),
		ResultLag:       gauge("alfengine_result_lag_seconds", "Lag between bar timestamp and result emission time"),

		FilterComputeDur: histogram("alfengine_filter_compute_duration_seconds", "Filter engine compute latency per bar", computeBuckets),
		ResultsTotal:     counterVec("alfengine_results_total", "Total filter values computed (by timeframe)", "tf"),
		PeeksTotal:       counter("alfengine_peeks_total", "Live preview values computed from forming bars"),
		TrendFlipsTotal:  counterVec("alfengine_trend_flips_total", "Trend label flips on steady filters (by new trend)", "trend"),

		CheckpointsTotal: counter("alfengine_checkpoints_total", "Engine snapshot checkpoints saved"),
		CheckpointDur:    histogram("alfengine_checkpoint_duration_seconds", "Engine snapshot capture + persist latency", prometheus.DefBuckets),

		RingBufOverflow: counter("alfengine_ringbuf_overflow_total", "Ring buffer push overflows (dropped feed messages)"),

		PELMessagesReclaimed: counter("alfengine_pel_messages_reclaimed_total", "Messages reclaimed from dead consumers via XCLAIM"),

		RedisCircuitBreakerState: gauge("alfengine_redis_circuit_breaker_state", "Redis circuit breaker state (0=closed, 1=open, 2=half-open)"),
		RedisCircuitBreakerTrips: counter("alfengine_redis_circuit_breaker_trips_total", "Times the Redis circuit breaker tripped open"),
		RedisBufferedWrites:      counter("alfengine_redis_buffered_writes_total", "Writes buffered locally during Redis circuit breaker open state"),

		SessionState:       gauge("alfengine_session_state", "Trading session state (0=closed, 1=open)"),
		SessionTransitions: counterVec("alfengine_session_transitions_total", "Trading session transitions (open, close, ws_disconnect)", "type"),
	}

	prometheus.MustRegister(
		m.BarsTotal, m.DroppedBars, m.WSReconnects,
		m.RedisWriteDur, m.SQLiteCommitDur, m.ResultLag,
		m.FilterComputeDur, m.ResultsTotal, m.PeeksTotal, m.TrendFlipsTotal,
		m.CheckpointsTotal, m.CheckpointDur,
		m.RingBufOverflow, m.PELMessagesReclaimed,
		m.RedisCircuitBreakerState, m.RedisCircuitBreakerTrips, m.RedisBufferedWrites,
		m.SessionState, m.SessionTransitions,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EngineOK       bool      `json:"engine_ok"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// set runs fn under the write lock.
func (h *HealthStatus) set(fn func()) {
	h.mu.Lock()
	fn()
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool)    { h.set(func() { h.FeedConnected = v }) }
func (h *HealthStatus) SetLastBarTime(t time.Time) { h.set(func() { h.LastBarTime = t }) }
func (h *HealthStatus) SetRedisConnected(v bool)   { h.set(func() { h.RedisConnected = v }) }
func (h *HealthStatus) SetSQLiteOK(v bool)         { h.set(func() { h.SQLiteOK = v }) }
func (h *HealthStatus) SetEngineOK(v bool)         { h.set(func() { h.EngineOK = v }) }
func (h *HealthStatus) SetEnabledTFs(tfs []int)    { h.set(func() { h.EnabledTFs = tfs }) }

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	ms := float64(time.Since(start).Microseconds()) / 1000.0

	h.set(func() {
		h.RedisConnected = err == nil
		h.RedisLatencyMs = ms
		h.LastCheckAt = time.Now()
	})
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	ms := float64(time.Since(start).Microseconds()) / 1000.0

	h.set(func() {
		h.SQLiteOK = err == nil
		h.SQLiteLatencyMs = ms
		h.LastCheckAt = time.Now()
	})
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if rdb != nil {
				h.CheckRedis(probeCtx, rdb)
			}
			if sqlDB != nil {
				h.CheckSQLite(probeCtx, sqlDB)
			}
			cancel()
		}
	}()
}

// healthReport is the /healthz response body.
type healthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	FeedConnected   bool    `json:"feed_connected"`
	LastBarTime     string  `json:"last_bar_time"`
	BarAge          string  `json:"bar_age"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	EngineOK        bool    `json:"engine_ok"`
	EnabledTFs      []int   `json:"enabled_tfs"`
	LastCheckAt     string  `json:"last_check_at"`
}

// ServeHTTP handles the /healthz endpoint. Any failed dependency makes
// the status degraded (503); losing both stores makes it unhealthy.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall, httpCode := "healthy", http.StatusOK
	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overall, httpCode = "degraded", http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overall = "unhealthy"
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	report := healthReport{
		Status:          overall,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(report)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
