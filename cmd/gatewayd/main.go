// cmd/gatewayd serves filter results and bars to frontend clients over
// WebSocket and REST. It subscribes to the engine's Redis PubSub channels
// and fans envelopes out to connected clients with replay-based gap
// backfill.
//
// Config (env vars):
//
//	REDIS_ADDR      — Redis address          (default: "localhost:6379")
//	GATEWAY_ADDR    — HTTP listen address    (default: ":8090")
//	ENABLED_TFS     — comma-separated TFs    (default: "3600,14400,86400")
//	SYMBOLS         — comma-separated pairs  (default: "GBPJPY")
//	FILTER_CONFIGS  — "ORDER:LENGTH[:MODE:PERIOD],..." filter specs
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"laguerre-systemv1/internal/alfengine"
	"laguerre-systemv1/internal/gateway"
	"laguerre-systemv1/internal/logger"

	goredis "github.com/go-redis/redis/v8"
)

var processStart = time.Now()

func main() {
	lg := logger.Init("gateway", slog.LevelInfo)
	lg.Info("starting")

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	listenAddr := getEnv("GATEWAY_ADDR", ":8090")
	enabledTFs := getEnv("ENABLED_TFS", "3600,14400,86400")
	symbolsEnv := getEnv("SYMBOLS", "GBPJPY")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		lg.Error("redis connection failed", "err", err)
		os.Exit(1)
	}
	lg.Info("redis connected", "addr", redisAddr)

	tfs := parseTFs(enabledTFs)
	if len(tfs) == 0 {
		lg.Error("no valid TFs in ENABLED_TFS")
		os.Exit(1)
	}
	symbols := parseSymbols(symbolsEnv)
	if len(symbols) == 0 {
		lg.Error("no valid symbols in SYMBOLS")
		os.Exit(1)
	}

	// Resolve the result names the engine computes for these specs
	var filterNames []string
	for _, cfg := range alfengine.ParseFilterSpecs(getEnv("FILTER_CONFIGS", "")) {
		filterNames = append(filterNames, cfg.Name())
	}

	hub := gateway.NewHub(rdb, tfs, symbols, filterNames)
	go hub.Run(ctx)
	go hub.StartMetricsBroadcast(ctx, processStart)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, rdb, ctx, tfs, symbols, processStart)

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		lg.Info("serving", "addr", listenAddr, "tfs", tfs, "symbols", symbols)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			lg.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	lg.Info("shutting down")
	cancel()
	srv.Shutdown(context.Background())
}

func parseTFs(s string) []int {
	var tfs []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs
}

func parseSymbols(s string) []string {
	var symbols []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
