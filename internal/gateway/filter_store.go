package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const activeFiltersRedisKey = "gateway:active_filters"

// FilterStore manages the active filter set and broadcasts changes.
type FilterStore struct {
	hub *Hub
	rdb *goredis.Client
}

// NewFilterStore creates a FilterStore backed by the given Hub.
func NewFilterStore(hub *Hub, rdb *goredis.Client) *FilterStore {
	return &FilterStore{hub: hub, rdb: rdb}
}

// Load restores the active filter set from Redis (if available).
// Called once during gateway startup. Returns true if restored.
func (fs *FilterStore) Load(ctx context.Context) bool {
	data, err := fs.rdb.Get(ctx, activeFiltersRedisKey).Result()
	if err != nil {
		return false
	}
	var cfg ActiveFilters
	if json.Unmarshal([]byte(data), &cfg) != nil {
		return false
	}
	fs.hub.mu.Lock()
	fs.hub.activeFilters = cfg
	fs.hub.mu.Unlock()
	log.Printf("[filter_store] restored active filter set from Redis: %d entries", len(cfg.Entries))
	return true
}

// Get returns the current active filter set.
func (fs *FilterStore) Get() ActiveFilters {
	fs.hub.mu.RLock()
	defer fs.hub.mu.RUnlock()
	return fs.hub.activeFilters
}

// Set updates the active filter set, persists it to Redis, and
// broadcasts the change to all connected clients.
func (fs *FilterStore) Set(cfg ActiveFilters) {
	fs.hub.mu.Lock()
	fs.hub.activeFilters = cfg
	fs.hub.mu.Unlock()

	// Persist to Redis (fire-and-forget)
	if fs.rdb != nil {
		data, err := json.Marshal(cfg)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := fs.rdb.Set(ctx, activeFiltersRedisKey, data, 0).Err(); err != nil {
				log.Printf("[filter_store] WARNING: failed to persist active filter set: %v", err)
			}
		}
	}

	envelope, _ := json.Marshal(map[string]interface{}{
		"type":    "filters_update",
		"entries": cfg.Entries,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})

	fs.hub.mu.RLock()
	defer fs.hub.mu.RUnlock()
	for client := range fs.hub.clients {
		select {
		case client.send <- envelope:
		default:
		}
	}
}
