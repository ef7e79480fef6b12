package laguerre

import (
	"log"

	"laguerre-systemv1/internal/model"
)

// SQLiteReader is the interface needed for backfill reads.
type SQLiteReader interface {
	ReadAllBars(tf int, afterTS int64) ([]model.Candle, error)
}

// Restorer orchestrates filter engine state restoration on service
// startup. It follows a priority chain: Redis snapshot → SQLite
// snapshot → cold start, then a SQLite backfill to warm up anything
// that came up cold.
type Restorer struct {
	configs []TFFilterConfig
}

// NewRestorer creates a new Restorer for the given filter configs.
func NewRestorer(configs []TFFilterConfig) *Restorer {
	return &Restorer{configs: configs}
}

// RestoreFromSnap attempts to restore an engine from a snapshot. If
// snapshot is nil, returns a fresh engine (cold start).
func (r *Restorer) RestoreFromSnap(snap *EngineSnapshot) (*Engine, error) {
	if snap == nil {
		log.Println("[restorer] no snapshot found — cold starting filter engine")
		return NewEngine(r.configs)
	}

	log.Printf("[restorer] restoring from snapshot (version=%d, streamID=%s, symbols=%d)",
		snap.Version, snap.StreamID, len(snap.Symbols))

	engine, err := RestoreEngine(r.configs, snap)
	if err != nil {
		log.Printf("[restorer] WARNING: snapshot restore failed: %v — falling back to cold start", err)
		return NewEngine(r.configs)
	}

	log.Printf("[restorer] ✅ restored filter engine from snapshot")
	return engine, nil
}

// ReplayBars feeds a slice of bars into the engine to catch up from the
// snapshot to current state. Returns the number of bars replayed.
func (r *Restorer) ReplayBars(engine *Engine, bars []model.Candle) int {
	count := 0
	for _, bar := range bars {
		if bar.Forming {
			continue
		}
		engine.Process(bar)
		count++
	}
	log.Printf("[restorer] replayed %d bars to catch up", count)
	return count
}

// BackfillFromSQLite reads historical bars from SQLite and feeds them
// into the engine to warm up cold filters. This should be called after
// engine creation/restore and before starting the live stream consumer.
//
// The backfill depth is the deepest warm-up any configured filter
// needs: past its steady-state threshold with a primed smoothing
// window. If onResults is non-nil, it is called with the filter results
// for each bar, allowing the caller to write them to Redis for history
// population.
func (r *Restorer) BackfillFromSQLite(engine *Engine, reader SQLiteReader, onResults func([]model.FilterResult)) int {
	if reader == nil {
		return 0
	}

	// Find the deepest warm-up across all configs
	maxWarmup := 0
	for _, cfg := range r.configs {
		for _, fc := range cfg.Filters {
			if wb := fc.warmupBars(); wb > maxWarmup {
				maxWarmup = wb
			}
		}
	}
	if maxWarmup == 0 {
		return 0
	}

	total := 0
	for _, cfg := range r.configs {
		bars, err := reader.ReadAllBars(cfg.TF, 0)
		if err != nil {
			log.Printf("[restorer] WARNING: failed to read TF=%d bars from SQLite: %v", cfg.TF, err)
			continue
		}

		// Only take the trailing maxWarmup bars per symbol (the most
		// recent ones matter for warm-up)
		bars = trailingPerSymbol(bars, maxWarmup)

		fed := 0
		for _, bar := range bars {
			bar.Forming = false
			results := engine.Process(bar)
			if onResults != nil && len(results) > 0 {
				onResults(results)
			}
			fed++
		}
		total += fed
		if fed > 0 {
			log.Printf("[restorer] backfilled %d bars from SQLite for TF=%d", fed, cfg.TF)
		}
	}

	if total > 0 {
		log.Printf("[restorer] ✅ backfilled %d total bars from SQLite", total)
	}
	return total
}

// trailingPerSymbol keeps the last n bars of each symbol, preserving
// overall order. ReadAllBars returns bars for every symbol interleaved
// by timestamp, so a global tail could starve low-activity symbols.
func trailingPerSymbol(bars []model.Candle, n int) []model.Candle {
	counts := make(map[string]int, 8)
	for i := range bars {
		counts[bars[i].Symbol]++
	}
	skip := make(map[string]int, len(counts))
	for sym, c := range counts {
		if c > n {
			skip[sym] = c - n
		}
	}
	if len(skip) == 0 {
		return bars
	}
	out := bars[:0:0]
	for i := range bars {
		if skip[bars[i].Symbol] > 0 {
			skip[bars[i].Symbol]--
			continue
		}
		out = append(out, bars[i])
	}
	return out
}
