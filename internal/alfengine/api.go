package alfengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"laguerre-systemv1/internal/laguerre"
)

// startHTTP launches the HTTP server for /reload and /healthz endpoints.
func (svc *Service) startHTTP(ctx context.Context) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/reload", svc.handleReload)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "ok")
		})
		log.Printf("[alfengine] HTTP server on %s (/reload, /healthz)", svc.cfg.HTTPAddr)
		if err := http.ListenAndServe(svc.cfg.HTTPAddr, mux); err != nil {
			log.Printf("[alfengine] HTTP server error: %v", err)
		}
	}()
}

// handleReload handles POST /reload for live config updates via HTTP.
// The body is a JSON array of TFFilterConfig (enums numeric, as in
// laguerre.Config's wire form).
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var newConfigs []laguerre.TFFilterConfig
	if err := json.NewDecoder(r.Body).Decode(&newConfigs); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := laguerre.ValidateConfigs(newConfigs); err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	preserved, created, err := svc.engine.ReloadConfigs(newConfigs)
	if err != nil {
		http.Error(w, "reload: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"preserved": preserved,
		"created":   created,
	})
}

// startConfigSubscriber listens on Redis PubSub for dynamic filter
// config updates published by the gateway or an operator.
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	go func() {
		pubsub := svc.redisReader.SubscribeChannel(ctx, "config:filters")
		if pubsub == nil {
			log.Println("[alfengine] WARNING: could not subscribe to config:filters")
			return
		}
		defer pubsub.Close()
		log.Println("[alfengine] subscribed to config:filters for dynamic reload")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				log.Printf("[alfengine] received config update: %s", msg.Payload)
				svc.reloadFromSpecs(ctx, ParseFilterSpecs(msg.Payload))
			}
		}
	}()
}

// reloadFromSpecs rebuilds TF configs from filter specs and reloads the
// engine. If new filters are created, backfills them from Redis bar
// streams.
func (svc *Service) reloadFromSpecs(ctx context.Context, newSpecs []laguerre.Config) {
	newConfigs := make([]laguerre.TFFilterConfig, len(svc.cfg.EnabledTFs))
	for i, tf := range svc.cfg.EnabledTFs {
		newConfigs[i] = laguerre.TFFilterConfig{TF: tf, Filters: newSpecs}
	}
	preserved, created, err := svc.engine.ReloadConfigs(newConfigs)
	if err != nil {
		log.Printf("[alfengine] invalid config: %v", err)
		return
	}
	log.Printf("[alfengine] reloaded: preserved=%d, created=%d", preserved, created)

	// Backfill new filters from Redis bar streams
	if created > 0 && len(svc.streams) > 0 {
		svc.backfillFromRedis(ctx)
		log.Printf("[alfengine] ✅ reload backfill complete for new filters")
	}
}
