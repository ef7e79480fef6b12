package alfengine

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/metrics"
	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/notification"
	redisstore "laguerre-systemv1/internal/store/redis"
	sqlitestore "laguerre-systemv1/internal/store/sqlite"
)

// Service is the top-level orchestrator for the filter engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	engine      *laguerre.Engine
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	buffered    *redisstore.BufferedWriter
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer
	prom        *metrics.Metrics
	health      *metrics.HealthStatus
	notifier    notification.Notifier

	streams []string
	barCh   chan model.Candle

	// restoredSnap is the snapshot the engine was restored from, or nil
	// on a cold start. It decides between full backfill and delta replay.
	restoredSnap *laguerre.EngineSnapshot

	// lastTrend tracks the previously seen trend per filter result key
	// so the process loop can detect flips worth alerting on.
	lastTrend map[string]model.Trend
}

// New creates a new Service from the given Config.
// It connects to Redis and SQLite; the engine is restored in Run.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		cfg:       cfg,
		prom:      metrics.NewMetrics(),
		health:    metrics.NewHealthStatus(),
		notifier:  notification.FromConfig(cfg.WebhookURL, cfg.TelegramBotToken, cfg.TelegramChatID),
		barCh:     make(chan model.Candle, 5000),
		lastTrend: make(map[string]model.Trend, 64),
	}
	svc.health.SetEnabledTFs(cfg.EnabledTFs)

	// ---- Connect to Redis ----
	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
		SnapshotKey:   cfg.SnapshotKey,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}
	svc.health.SetRedisConnected(true)

	// ---- Open SQLite ----
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[alfengine] WARNING: sqlite reader init failed: %v (continuing without SQLite backfill)", err)
	}

	os.MkdirAll("data", 0o755)
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[alfengine] WARNING: sqlite writer init failed: %v", err)
	} else {
		svc.health.SetSQLiteOK(true)
	}

	return svc, nil
}

// setupBreaker wraps the Redis writer in a circuit breaker so a Redis
// outage degrades to local buffering instead of blocking the pipeline.
func (svc *Service) setupBreaker(ctx context.Context) {
	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[alfengine] redis circuit breaker: %s → %s", from, to)
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
	}
	svc.buffered = redisstore.NewBufferedWriter(ctx, svc.redisWriter, cb, 10000)
	svc.buffered.OnBuffer = func() { svc.prom.RedisBufferedWrites.Inc() }
	svc.buffered.OnFlush = func(count int) {
		log.Printf("[alfengine] flushed %d buffered writes after circuit close", count)
	}
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[alfengine] starting Adaptive Laguerre Filter engine...")

	svc.setupBreaker(ctx)

	// ---- Restore engine from snapshot ----
	if err := svc.restoreEngine(ctx); err != nil {
		return err
	}
	svc.health.SetEngineOK(true)

	// ---- Metrics + health server ----
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, svc.health)
	metricsSrv.Start()
	if svc.sqlWriter != nil {
		svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), svc.sqlWriter.DB(), 10*time.Second)
	} else {
		svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), nil, 10*time.Second)
	}

	// ---- Symbol registry so the gateway can discover what runs here ----
	if err := svc.redisWriter.RegisterSymbols(ctx, cfg.Symbols); err != nil {
		log.Printf("[alfengine] WARNING: symbol registry write: %v", err)
	}

	// ---- Source wiring ----
	switch cfg.Source {
	case SourceLive:
		if err := svc.startLiveFeed(ctx); err != nil {
			return err
		}
	default:
		svc.streams = svc.buildStreams(ctx)
		log.Printf("[alfengine] consuming from %d streams: %v", len(svc.streams), svc.streams)

		// Cold start: replay the full stream history. Restored from a
		// snapshot: only the delta since it, so no bar is fed twice.
		if fullBackfillNeeded(svc.restoredSnap) {
			svc.backfillFromRedis(ctx)
		} else {
			svc.replayDelta(ctx)
		}

		if len(svc.streams) > 0 {
			if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
				log.Printf("[alfengine] WARNING: consumer group setup: %v", err)
			}
			if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.barCh); err != nil {
				log.Printf("[alfengine] pending recovery error: %v", err)
			}
		}

		svc.startPELReclaimer(ctx)
		svc.startConsumer(ctx)
		go svc.peekLoop(ctx)
		svc.health.SetFeedConnected(true) // redis is the feed in this mode
	}

	// ---- Processing subsystems ----
	go svc.processLoop(ctx)
	go svc.snapshotLoop(ctx)
	svc.startHTTP(ctx)
	svc.startConfigSubscriber(ctx)

	// ---- Startup banner ----
	log.Println("[alfengine] ╔════════════════════════════════════════════════════════╗")
	log.Println("[alfengine] ║  Adaptive Laguerre Filter Engine Active                ║")
	log.Println("[alfengine] ║                                                        ║")
	log.Printf("[alfengine] ║  [%-5s bars] → [Laguerre filters] → [Redis Publish]   ║", cfg.Source)
	log.Printf("[alfengine] ║  Snapshot checkpoint every %ds                         ║", cfg.SnapshotIntervalS)
	log.Printf("[alfengine] ║  TFs: %v  Symbols: %v", cfg.EnabledTFs, cfg.Symbols)
	log.Println("[alfengine] ╚════════════════════════════════════════════════════════╝")
	log.Println("[alfengine] ✅ all systems running. Press Ctrl+C to stop.")

	// Block until context cancelled
	<-ctx.Done()

	// ---- Graceful shutdown ----
	svc.shutdown()
	return nil
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown() {
	log.Println("[alfengine] shutdown signal received, saving final snapshot...")

	if err := svc.checkpoint("shutdown"); err != nil {
		log.Printf("[alfengine] final snapshot error: %v", err)
	} else {
		log.Println("[alfengine] final snapshot saved")
	}

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()

	log.Println("[alfengine] shutdown complete.")
}

// restoreEngine restores the filter engine from a Redis or SQLite
// snapshot, then backfills from SQLite for cold filters.
func (svc *Service) restoreEngine(ctx context.Context) error {
	restorer := laguerre.NewRestorer(svc.cfg.FilterConfigs)

	snap := svc.loadSnapshot()

	engine, err := restorer.RestoreFromSnap(snap)
	if err != nil {
		return err
	}
	svc.engine = engine
	svc.restoredSnap = snap

	// Backfill from SQLite to warm up cold filters
	if svc.sqlReader != nil {
		backfilled := restorer.BackfillFromSQLite(svc.engine, svc.sqlReader, func(results []model.FilterResult) {
			svc.writeResults(ctx, results)
		})
		if backfilled > 0 {
			log.Printf("[alfengine] warmed up filters with %d historical bars (results written to Redis)", backfilled)
		}
	}

	return nil
}

// loadSnapshot tries Redis first, then SQLite. Returns nil on a cold
// start.
func (svc *Service) loadSnapshot() *laguerre.EngineSnapshot {
	data, err := svc.redisReader.ReadLatestSnapshotJSON()
	if err != nil {
		log.Printf("[alfengine] redis snapshot read error: %v", err)
	}
	if data == nil && svc.sqlReader != nil {
		data, err = svc.sqlReader.ReadLatestSnapshotJSON()
		if err != nil {
			log.Printf("[alfengine] sqlite snapshot read error: %v", err)
		}
	}
	if data == nil {
		return nil
	}

	var snap laguerre.EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[alfengine] snapshot decode error: %v — cold starting", err)
		return nil
	}
	return &snap
}

// buildStreams constructs the Redis stream names to consume, preferring
// the configured symbols and falling back to stream discovery.
func (svc *Service) buildStreams(ctx context.Context) []string {
	if len(svc.cfg.Symbols) > 0 {
		var streams []string
		for _, tf := range svc.cfg.EnabledTFs {
			for _, sym := range svc.cfg.Symbols {
				streams = append(streams, "bar:"+model.Itoa(tf)+"s:"+sym)
			}
		}
		return streams
	}
	return svc.redisReader.DiscoverBarStreams(ctx, svc.cfg.EnabledTFs, svc.cfg.Symbols)
}

// backfillFromRedis replays all historical bars from Redis streams
// through the engine.
func (svc *Service) backfillFromRedis(ctx context.Context) {
	backfillCh := make(chan model.Candle, 5000)
	go func() {
		for _, stream := range svc.streams {
			_, err := svc.redisReader.ReplayFromID(ctx, stream, "0", backfillCh)
			if err != nil {
				log.Printf("[alfengine] backfill error on %s: %v", stream, err)
			}
		}
		close(backfillCh)
	}()

	backfillCount := 0
	for bar := range backfillCh {
		if !bar.Forming {
			results := svc.engine.Process(bar)
			svc.writeResults(ctx, results)
			backfillCount++
		}
	}
	if backfillCount > 0 {
		log.Printf("[alfengine] ✅ backfilled %d bars from Redis streams (filter results written)", backfillCount)
	} else {
		log.Println("[alfengine] no bars in Redis streams to backfill from")
	}
}

// fullBackfillNeeded reports whether the engine started cold. Only a
// cold engine replays the whole stream history; a restored one already
// carries the pre-snapshot bars in its filter state.
func fullBackfillNeeded(snap *laguerre.EngineSnapshot) bool {
	return snap == nil
}

// replayDelta replays bars since the restored snapshot to catch up on
// missed data.
func (svc *Service) replayDelta(ctx context.Context) {
	snap := svc.restoredSnap
	if snap == nil || snap.StreamID == "" {
		return
	}

	log.Printf("[alfengine] replaying delta from stream ID: %s", snap.StreamID)
	replayCh := make(chan model.Candle, 5000)
	go func() {
		for _, stream := range svc.streams {
			_, err := svc.redisReader.ReplayFromID(ctx, stream, snap.StreamID, replayCh)
			if err != nil {
				log.Printf("[alfengine] replay error on %s: %v", stream, err)
			}
		}
		close(replayCh)
	}()

	deltaCount := 0
	for bar := range replayCh {
		if !bar.Forming {
			results := svc.engine.Process(bar)
			svc.writeResults(ctx, results)
			deltaCount++
		}
	}
	log.Printf("[alfengine] ✅ replayed %d delta bars (results written to Redis)", deltaCount)
}

// writeResults pushes filter results to Redis (through the breaker when
// available) and persists confirmed results to SQLite.
func (svc *Service) writeResults(ctx context.Context, results []model.FilterResult) {
	if len(results) == 0 {
		return
	}

	start := time.Now()
	var err error
	if svc.buffered != nil {
		err = svc.buffered.WriteResultBatch(ctx, results)
	} else {
		err = svc.redisWriter.WriteResultBatch(ctx, results)
	}
	if err != nil {
		log.Printf("[alfengine] result write error: %v", err)
	}
	svc.prom.RedisWriteDur.Observe(time.Since(start).Seconds())

	if svc.sqlWriter != nil {
		if err := svc.sqlWriter.WriteResultBatch(ctx, results); err != nil {
			log.Printf("[alfengine] sqlite result write error: %v", err)
		}
	}
}
