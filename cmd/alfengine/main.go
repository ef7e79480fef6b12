package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"laguerre-systemv1/internal/alfengine"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := alfengine.LoadConfig()
	log.Printf("[alfengine] source=%s, enabled TFs: %v, symbols: %v, snapshot interval: %ds",
		cfg.Source, cfg.EnabledTFs, cfg.Symbols, cfg.SnapshotIntervalS)

	svc, err := alfengine.New(cfg)
	if err != nil {
		log.Fatalf("[alfengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[alfengine] fatal: %v", err)
	}
}
