package laguerre

import (
	"fmt"
	"log"
)

// ReloadConfigs updates the engine with new configurations. It
// preserves state for filters that already exist and only creates new
// instances for genuinely new configs — adding one filter must not
// throw away another's accumulated warm-up. Returns the number of
// preserved and new per-symbol states.
func (e *Engine) ReloadConfigs(newConfigs []TFFilterConfig) (preserved, created int, err error) {
	if err := ValidateConfigs(newConfigs); err != nil {
		return 0, 0, err
	}

	// Build lookup of old configs + state by TF
	oldCfgByTF := make(map[int]TFFilterConfig)
	oldStateByTF := make(map[int]map[string]*symbolFilters)
	for i, cfg := range e.configs {
		oldCfgByTF[cfg.TF] = cfg
		oldStateByTF[cfg.TF] = e.state[i]
	}

	// Build new state array
	newState := make([]map[string]*symbolFilters, len(newConfigs))
	for i, newCfg := range newConfigs {
		oldCfg, tfExists := oldCfgByTF[newCfg.TF]
		oldTFState := oldStateByTF[newCfg.TF]

		if !tfExists || oldTFState == nil {
			// Brand-new TF — cold-start
			newState[i] = make(map[string]*symbolFilters, 16)
			created++
			log.Printf("[reload] TF=%d: new timeframe, cold-starting", newCfg.TF)
			continue
		}

		// TF exists — check if the filter set is identical (fast path)
		if filterSetsEqual(oldCfg.Filters, newCfg.Filters) {
			newState[i] = oldTFState
			preserved += len(oldTFState)
			log.Printf("[reload] TF=%d: unchanged, preserved %d symbol states", newCfg.TF, len(oldTFState))
			continue
		}

		// Filter set changed — migrate per-symbol state
		migrated := make(map[string]*symbolFilters, len(oldTFState))
		for symbol, oldSF := range oldTFState {
			migrated[symbol] = migrateSymbolFilters(oldSF, newCfg.Filters)
			preserved++
		}
		newState[i] = migrated
		created++ // mark that new filters need backfill
		log.Printf("[reload] TF=%d: migrated %d symbol states (added new filters)", newCfg.TF, len(migrated))
	}

	e.configs = newConfigs
	e.state = newState

	log.Printf("[reload] ✅ config reloaded: %d configs, %d preserved, %d new",
		len(newConfigs), preserved, created)

	return preserved, created, nil
}

// migrateSymbolFilters creates a new symbolFilters for the new config
// set, carrying over instances whose full config (order, length, mode,
// smoothing, aggregation, applied price) matches an old one.
func migrateSymbolFilters(oldSF *symbolFilters, newConfigs []Config) *symbolFilters {
	oldByKey := make(map[string]*Filter, len(oldSF.filters))
	for i, cfg := range oldSF.configs {
		oldByKey[cfg.Key()] = oldSF.filters[i]
	}

	filters := make([]*Filter, 0, len(newConfigs))
	configs := make([]Config, 0, len(newConfigs))
	for _, cfg := range newConfigs {
		if existing, ok := oldByKey[cfg.Key()]; ok {
			filters = append(filters, existing) // preserve accumulated state
			configs = append(configs, cfg)
			continue
		}
		f, err := New(cfg)
		if err != nil {
			continue // validated upstream; cannot happen
		}
		filters = append(filters, f)
		configs = append(configs, cfg)
	}

	return &symbolFilters{
		filters: filters,
		configs: configs,
	}
}

// filterSetsEqual checks if two config slices describe the exact same
// set of filters (order-independent).
func filterSetsEqual(a, b []Config) bool {
	if len(a) != len(b) {
		return false
	}
	setA := make(map[string]bool, len(a))
	for _, cfg := range a {
		setA[cfg.Key()] = true
	}
	for _, cfg := range b {
		if !setA[cfg.Key()] {
			return false
		}
	}
	return true
}

// ValidateConfigs checks a set of TFFilterConfigs for errors.
func ValidateConfigs(configs []TFFilterConfig) error {
	seen := make(map[int]bool)
	for _, cfg := range configs {
		if cfg.TF <= 0 {
			return fmt.Errorf("invalid TF=%d: must be positive", cfg.TF)
		}
		if seen[cfg.TF] {
			return fmt.Errorf("duplicate TF=%d", cfg.TF)
		}
		seen[cfg.TF] = true

		for _, fc := range cfg.Filters {
			if err := fc.Validate(); err != nil {
				return fmt.Errorf("TF=%d %s: %w", cfg.TF, fc.Name(), err)
			}
		}
	}
	return nil
}
