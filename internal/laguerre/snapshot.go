package laguerre

import (
	"encoding/json"
	"fmt"
	"log"

	"laguerre-systemv1/internal/model"
)

// FilterSnapshot holds the serialized state of a single filter
// instance: the config identity plus every piece of dynamic state
// needed to resume bar-for-bar identical to an uninterrupted run.
type FilterSnapshot struct {
	Order        int    `json:"order"`
	Length       int    `json:"length"`
	Adaptive     bool   `json:"adaptive,omitempty"`
	SmoothPeriod int    `json:"smooth_period,omitempty"`
	SmoothMode   string `json:"smooth_mode,omitempty"`
	Trima        string `json:"trima,omitempty"`
	Applied      string `json:"applied,omitempty"`

	SampleIndex int       `json:"sample_index"`
	Cur         []float64 `json:"cur,omitempty"`
	Prev        []float64 `json:"prev,omitempty"`
	Gamma       float64   `json:"gamma,omitempty"`
	Value       float64   `json:"value,omitempty"`
	PrevValue   float64   `json:"prev_value,omitempty"`
	HasPrev     bool      `json:"has_prev,omitempty"`
	Trend       string    `json:"trend,omitempty"`

	// Adaptive estimator state: windows oldest-first, plus the running
	// EMA/Wilder accumulator.
	Devs    []float64 `json:"devs,omitempty"`
	Raws    []float64 `json:"raws,omitempty"`
	Ema     float64   `json:"ema,omitempty"`
	EmaInit bool      `json:"ema_init,omitempty"`
}

// config reconstructs the Config the snapshot was taken from.
func (s FilterSnapshot) config() Config {
	mode, _ := ParseSmoothMode(s.SmoothMode)
	trima, _ := ParseTrimaMode(s.Trima)
	applied, _ := model.ParseAppliedPrice(s.Applied)
	return Config{
		Order:        s.Order,
		Length:       s.Length,
		Adaptive:     s.Adaptive,
		SmoothPeriod: s.SmoothPeriod,
		SmoothMode:   mode,
		Trima:        trima,
		Applied:      applied,
	}
}

// Snapshot captures the filter's full state.
func (f *Filter) Snapshot() FilterSnapshot {
	snap := FilterSnapshot{
		Order:        f.cfg.Order,
		Length:       f.cfg.Length,
		Adaptive:     f.cfg.Adaptive,
		SmoothPeriod: f.cfg.SmoothPeriod,
		SmoothMode:   f.cfg.SmoothMode.String(),
		Trima:        f.cfg.Trima.String(),
		Applied:      f.cfg.Applied.String(),
		SampleIndex:  f.sampleIndex,
		Cur:          append([]float64(nil), f.cur...),
		Prev:         append([]float64(nil), f.prev...),
		Gamma:        f.gamma,
		Value:        f.value,
		PrevValue:    f.prevValue,
		HasPrev:      f.hasPrev,
		Trend:        f.trend.String(),
	}
	if f.est != nil {
		snap.Devs = f.est.devs.appendOldestFirst(nil)
		if f.est.raws != nil {
			snap.Raws = f.est.raws.appendOldestFirst(nil)
		}
		snap.Ema = f.est.ema
		snap.EmaInit = f.est.emaInit
	}
	return snap
}

// RestoreFromSnapshot loads state captured by Snapshot. The snapshot
// must belong to an identically configured filter; a mismatch leaves
// the filter untouched and returns an error.
func (f *Filter) RestoreFromSnapshot(snap FilterSnapshot) error {
	if snap.config().Key() != f.cfg.Key() {
		return fmt.Errorf("snapshot config %s does not match filter %s", snap.config().Key(), f.cfg.Key())
	}
	if len(snap.Cur) != f.cfg.Order || len(snap.Prev) != f.cfg.Order {
		return fmt.Errorf("snapshot stage count %d/%d does not match order %d",
			len(snap.Cur), len(snap.Prev), f.cfg.Order)
	}
	trend, ok := model.ParseTrend(snap.Trend)
	if !ok {
		return fmt.Errorf("snapshot has unknown trend %q", snap.Trend)
	}

	copy(f.cur, snap.Cur)
	copy(f.prev, snap.Prev)
	f.sampleIndex = snap.SampleIndex
	f.gamma = snap.Gamma
	f.value = snap.Value
	f.prevValue = snap.PrevValue
	f.hasPrev = snap.HasPrev
	f.trend = trend

	if f.est != nil {
		f.est.reset()
		for _, d := range snap.Devs {
			f.est.devs.push(d)
		}
		if f.est.raws != nil {
			for _, r := range snap.Raws {
				f.est.raws.push(r)
			}
		}
		f.est.ema = snap.Ema
		f.est.emaInit = snap.EmaInit
	}
	return nil
}

// SymbolSnapshot holds filter snapshots for a single symbol within a TF.
type SymbolSnapshot struct {
	Symbol  string           `json:"symbol"`
	TF      int              `json:"tf"`
	Filters []FilterSnapshot `json:"filters"`
}

// EngineSnapshot holds the full state of the filter engine.
type EngineSnapshot struct {
	StreamID string           `json:"stream_id"` // Redis Stream ID at checkpoint time
	Symbols  []SymbolSnapshot `json:"symbols"`
	Version  int              `json:"version"` // schema version for forward compat
}

// MarshalJSON serializes the engine snapshot to JSON.
func (es *EngineSnapshot) MarshalJSON() ([]byte, error) {
	type Alias EngineSnapshot
	return json.Marshal((*Alias)(es))
}

// UnmarshalJSON deserializes the engine snapshot from JSON.
func (es *EngineSnapshot) UnmarshalJSON(data []byte) error {
	type Alias EngineSnapshot
	return json.Unmarshal(data, (*Alias)(es))
}

// SnapshotEngine captures the full state of a filter Engine.
func SnapshotEngine(e *Engine, streamID string) (*EngineSnapshot, error) {
	snap := &EngineSnapshot{
		StreamID: streamID,
		Version:  1,
	}

	for tfIdx, cfg := range e.configs {
		for symbol, sf := range e.state[tfIdx] {
			ss := SymbolSnapshot{
				Symbol:  symbol,
				TF:      cfg.TF,
				Filters: make([]FilterSnapshot, 0, len(sf.filters)),
			}
			for _, f := range sf.filters {
				ss.Filters = append(ss.Filters, f.Snapshot())
			}
			snap.Symbols = append(snap.Symbols, ss)
		}
	}

	return snap, nil
}

// RestoreEngine rebuilds a filter Engine from a snapshot. It is
// tolerant of config changes — filters are matched by their full config
// identity rather than by index. Matching filters get their state
// restored; new filters start fresh (cold). Removed filters are
// silently skipped.
func RestoreEngine(configs []TFFilterConfig, snap *EngineSnapshot) (*Engine, error) {
	e, err := NewEngine(configs)
	if err != nil {
		return nil, err
	}

	for _, ss := range snap.Symbols {
		tfIdx := e.tfIndex(ss.TF)
		if tfIdx == -1 {
			continue // TF no longer configured — skip
		}

		sf := e.createSymbolFilters(tfIdx)

		snapLookup := make(map[string]FilterSnapshot, len(ss.Filters))
		for _, fs := range ss.Filters {
			snapLookup[fs.config().Key()] = fs
		}

		restored, cold := 0, 0
		for i, f := range sf.filters {
			fs, found := snapLookup[sf.configs[i].Key()]
			if !found {
				cold++
				continue // new filter — stays fresh/zero
			}
			if err := f.RestoreFromSnapshot(fs); err != nil {
				// Non-fatal: log and leave cold
				cold++
				continue
			}
			restored++
		}

		if cold > 0 {
			log.Printf("[restorer] TF=%d symbol=%s: restored %d, cold-started %d filters",
				ss.TF, ss.Symbol, restored, cold)
		}

		e.state[tfIdx][ss.Symbol] = sf
	}

	return e, nil
}
