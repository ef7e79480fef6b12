package laguerre

import (
	"math"

	"laguerre-systemv1/internal/model"
)

// SeriesResult is the batch output of a filter run over a price slice.
// Entries before the filter reaches steady state are padded: NaN for
// Values and Gammas, TrendNeutral for Trends. Downstream consumers
// (verification, backtests) skip the padded prefix.
type SeriesResult struct {
	Values []float64
	Gammas []float64
	Trends []model.Trend
}

// Steady returns the index of the first non-padded entry, or -1 when
// the series never reached steady state.
func (r SeriesResult) Steady() int {
	for i, v := range r.Values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// RunSeries folds a fresh filter over prices and collects the per-bar
// triple. The argument slice is not modified.
func RunSeries(cfg Config, prices []float64) (SeriesResult, error) {
	f, err := New(cfg)
	if err != nil {
		return SeriesResult{}, err
	}
	res := SeriesResult{
		Values: make([]float64, len(prices)),
		Gammas: make([]float64, len(prices)),
		Trends: make([]model.Trend, len(prices)),
	}
	for i, p := range prices {
		out := f.Step(p)
		if !f.Ready() {
			res.Values[i] = math.NaN()
			res.Gammas[i] = math.NaN()
			res.Trends[i] = model.TrendNeutral
			continue
		}
		res.Values[i] = out
		res.Gammas[i] = f.Gamma()
		res.Trends[i] = f.Trend()
	}
	return res, nil
}

// RunSeriesCandles is RunSeries over bars, extracting the configured
// applied price from each.
func RunSeriesCandles(cfg Config, bars []model.Candle) (SeriesResult, error) {
	prices := make([]float64, len(bars))
	for i := range bars {
		prices[i] = bars[i].Price(cfg.Applied)
	}
	return RunSeries(cfg, prices)
}
