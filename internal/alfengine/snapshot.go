package alfengine

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"laguerre-systemv1/internal/laguerre"
)

// snapshotLoop periodically saves engine state to Redis and SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(svc.cfg.SnapshotIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.checkpoint(lastStreamIDMarker()); err != nil {
				log.Printf("[alfengine] snapshot error: %v", err)
			}
		}
	}
}

// checkpoint captures the engine state and writes it to both stores.
// Redis holds the fast-restore copy, SQLite the durable one.
func (svc *Service) checkpoint(streamID string) error {
	start := time.Now()

	snap, err := laguerre.SnapshotEngine(svc.engine, streamID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	if err := svc.redisReader.SaveSnapshotJSON(data); err != nil {
		log.Printf("[alfengine] redis snapshot write error: %v", err)
	}
	if svc.sqlWriter != nil {
		if err := svc.sqlWriter.SaveSnapshotJSON(data); err != nil {
			log.Printf("[alfengine] sqlite snapshot write error: %v", err)
		}
	}

	svc.prom.CheckpointsTotal.Inc()
	svc.prom.CheckpointDur.Observe(time.Since(start).Seconds())
	log.Printf("[alfengine] ✅ checkpoint saved (%d symbol states)", len(snap.Symbols))
	return nil
}

// lastStreamIDMarker returns a time-based stream ID marker for snapshots.
func lastStreamIDMarker() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"
}
