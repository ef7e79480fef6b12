package laguerre

import (
	"context"

	"laguerre-systemv1/internal/model"
)

// TFFilterConfig groups filter configs for a specific timeframe.
type TFFilterConfig struct {
	TF      int // timeframe in seconds
	Filters []Config
}

// symbolFilters holds live filter instances for one symbol within a TF.
type symbolFilters struct {
	filters []*Filter
	configs []Config
}

// Engine computes multiple filters across multiple TFs for multiple
// symbols. Designed for single-goroutine usage — no locks needed.
type Engine struct {
	configs []TFFilterConfig

	// state[tfIdx][symbol] → *symbolFilters
	state []map[string]*symbolFilters
}

// NewEngine creates a filter engine with the given per-TF configs. The
// configs are validated up front; filters are instantiated lazily on
// the first bar per symbol.
func NewEngine(configs []TFFilterConfig) (*Engine, error) {
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	state := make([]map[string]*symbolFilters, len(configs))
	for i := range state {
		state[i] = make(map[string]*symbolFilters, 16)
	}
	return &Engine{
		configs: configs,
		state:   state,
	}, nil
}

// Process takes a completed bar and steps every filter configured for
// its TF. Returns one result per filter (not-ready filters included,
// with Ready=false).
func (e *Engine) Process(bar model.Candle) []model.FilterResult {
	tfIdx := e.tfIndex(bar.TF)
	if tfIdx == -1 {
		return nil // TF not configured
	}

	key := bar.Key()
	sf, exists := e.state[tfIdx][key]
	if !exists {
		// First bar for this symbol + TF — create filter instances
		sf = e.createSymbolFilters(tfIdx)
		e.state[tfIdx][key] = sf
	}

	results := make([]model.FilterResult, 0, len(sf.filters))
	for _, f := range sf.filters {
		f.Update(bar)
		results = append(results, model.FilterResult{
			Name:   f.Name(),
			Symbol: bar.Symbol,
			TF:     bar.TF,
			Value:  f.Value(),
			Gamma:  f.Gamma(),
			Trend:  f.Trend(),
			TS:     bar.TS,
			Ready:  f.Ready(),
		})
	}
	return results
}

// ProcessPeek computes live filter values for a forming bar using
// Peek(). Does NOT mutate filter state — safe to call on every tick of
// a forming bar. Returns nil if the symbol hasn't been seeded by a
// completed bar yet.
func (e *Engine) ProcessPeek(bar model.Candle) []model.FilterResult {
	tfIdx := e.tfIndex(bar.TF)
	if tfIdx == -1 {
		return nil
	}

	sf, exists := e.state[tfIdx][bar.Key()]
	if !exists {
		// Symbol hasn't been seeded by a completed bar yet — skip peek.
		// The service calls Process() on completed bars first.
		return nil
	}

	results := make([]model.FilterResult, 0, len(sf.filters))
	for _, f := range sf.filters {
		results = append(results, model.FilterResult{
			Name:   f.Name(),
			Symbol: bar.Symbol,
			TF:     bar.TF,
			Value:  f.PeekCandle(bar),
			Gamma:  f.Gamma(),
			Trend:  f.Trend(),
			TS:     bar.TS,
			Ready:  f.Ready(),
			Live:   true,
		})
	}
	return results
}

// Run consumes bars and emits filter results. Blocks until ctx done.
func (e *Engine) Run(ctx context.Context, barCh <-chan model.Candle, resultCh chan<- model.FilterResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar.Forming {
				continue // only completed bars mutate filter state
			}
			results := e.Process(bar)
			for _, r := range results {
				select {
				case resultCh <- r:
				default:
					// drop if channel full
				}
			}
		}
	}
}

// tfIndex finds the config slot for a timeframe, -1 if unconfigured.
func (e *Engine) tfIndex(tf int) int {
	for i, cfg := range e.configs {
		if cfg.TF == tf {
			return i
		}
	}
	return -1
}

// createSymbolFilters creates fresh filter instances for a TF config.
func (e *Engine) createSymbolFilters(tfIdx int) *symbolFilters {
	cfg := e.configs[tfIdx]
	filters := make([]*Filter, 0, len(cfg.Filters))
	configs := make([]Config, 0, len(cfg.Filters))
	for _, fc := range cfg.Filters {
		f, err := New(fc)
		if err != nil {
			// configs are validated at engine construction; an invalid
			// one here is a programming error
			continue
		}
		filters = append(filters, f)
		configs = append(configs, fc)
	}
	return &symbolFilters{
		filters: filters,
		configs: configs,
	}
}
