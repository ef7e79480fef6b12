// Package laguerre implements the Adaptive Laguerre Filter over bar data.
//
// A Filter maintains an order-deep chain of recursive stages driven by a
// smoothing coefficient (gamma) that is either fixed — derived from the
// configured length — or adapted per bar from an efficiency ratio of
// recent price-to-filter deviations. The stage values are aggregated by
// a triangular moving average into one filtered value per bar, and a
// discrete trend label is derived from consecutive outputs.
//
// The Filter is a pure in-memory state machine: it knows nothing about
// streams, storage or symbols. Engine composes many Filters across
// symbols and timeframes and is the streaming entry point.
package laguerre

import "laguerre-systemv1/internal/model"

// FilterState is the lifecycle phase of a Filter. Transitions are
// monotonic: BOOTSTRAPPING -> WARMING_UP -> STEADY, driven only by the
// sample count.
type FilterState int8

const (
	// StateBootstrapping: fewer samples than stages; stage values track
	// the raw price.
	StateBootstrapping FilterState = iota

	// StateWarmingUp: the recursion may run (fixed mode) but the
	// adaptive deviation window is still filling, so outputs are not
	// yet trustworthy.
	StateWarmingUp

	// StateSteady: the filter has seen more than 2*Length samples and
	// its output is fully formed.
	StateSteady
)

// String returns the log spelling of the state.
func (s FilterState) String() string {
	switch s {
	case StateBootstrapping:
		return "BOOTSTRAPPING"
	case StateWarmingUp:
		return "WARMING_UP"
	case StateSteady:
		return "STEADY"
	}
	return "UNKNOWN"
}

// Gamma is clamped to this closed range before every recursion pass.
// gamma=1 would freeze the stages and gamma=0 would disable smoothing
// entirely; both ends stay strictly inside (0,1).
const (
	gammaMin = 0.01
	gammaMax = 0.99
)

// Filter is one Adaptive Laguerre Filter instance. Not safe for
// concurrent use; Engine serializes access per symbol.
type Filter struct {
	cfg Config

	// cur and prev are the stage chains for the current and previous
	// sample. prev is snapshotted in full before any stage is
	// recomputed, so the recursion never reads a half-updated chain.
	cur  []float64
	prev []float64

	gamma       float64 // last clamped gamma fed to the recursion
	sampleIndex int     // 1-based count of samples consumed
	value       float64 // last aggregated output
	prevValue   float64 // output one sample back
	hasPrev     bool
	trend       model.Trend

	est *gammaEstimator // nil in fixed mode
}

// New builds a Filter from cfg. The config is validated; an invalid
// config is a caller bug and is reported, never coerced.
func New(cfg Config) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{
		cfg:   cfg,
		cur:   make([]float64, cfg.Order),
		prev:  make([]float64, cfg.Order),
		trend: model.TrendNeutral,
	}
	if cfg.Adaptive {
		f.est = newGammaEstimator(cfg.Length, cfg.SmoothPeriod, cfg.SmoothMode)
	} else {
		f.gamma = clampGamma(cfg.FixedGamma())
	}
	return f, nil
}

// Step consumes one price and returns the new filtered value. This is
// the primitive the whole package is built on; Update is the bar-facing
// wrapper.
//
// Order of operations per sample: count the sample, record the
// price-to-filter deviation (adaptive mode), snapshot the stage chain,
// then either track the raw price (bootstrap regime) or run the
// recursion with the current gamma, and finally aggregate, classify the
// trend and roll the previous-output bookkeeping.
func (f *Filter) Step(price float64) float64 {
	f.sampleIndex++

	var dev float64
	if f.est != nil {
		if f.hasPrev {
			dev = absf(price - f.prevValue)
		}
		f.est.recordDeviation(dev)
	}

	copy(f.prev, f.cur)

	if f.bootstrapRegime() {
		for i := range f.cur {
			f.cur[i] = price
		}
	} else {
		if f.est != nil {
			f.gamma = clampGamma(f.est.nextGamma(dev))
		}
		f.recurse(price)
	}

	out := f.aggregate()
	f.trend = classifyTrend(out, f.prevValue, f.hasPrev, f.trend)
	f.prevValue = out
	f.hasPrev = true
	f.value = out
	return out
}

// Update consumes one bar, extracting the configured applied price.
func (f *Filter) Update(c model.Candle) {
	f.Step(c.Price(f.cfg.Applied))
}

// bootstrapRegime reports whether this sample's stages should track the
// raw price instead of running the recursion. Fixed mode leaves the
// bootstrap as soon as every stage has one real sample behind it;
// adaptive mode stays in it for the whole warm-up so the recursion
// never consumes a gamma estimated from a half-filled deviation window.
func (f *Filter) bootstrapRegime() bool {
	if f.est != nil {
		return f.sampleIndex <= f.cfg.steadyStart()
	}
	return f.sampleIndex <= f.cfg.Order
}

// recurse runs one pass of the Laguerre ladder. With gam = 1-gamma:
//
//	stage[0] = (1-gam)*price + gam*prev[0]
//	stage[i] =   -gam*cur[i-1] + prev[i-1] + gam*prev[i]
//
// cur[i-1] is this sample's already-updated lower stage, prev[*] the
// snapshot taken before any stage changed.
func (f *Filter) recurse(price float64) {
	gam := 1.0 - f.gamma
	f.cur[0] = (1.0-gam)*price + gam*f.prev[0]
	for i := 1; i < len(f.cur); i++ {
		f.cur[i] = -gam*f.cur[i-1] + f.prev[i-1] + gam*f.prev[i]
	}
}

// aggregate folds the stage chain into the output value.
func (f *Filter) aggregate() float64 {
	if f.cfg.Trima == TrimaWindowed {
		return trimaWindowed(f.cur)
	}
	return trimaUniform(f.cur)
}

// Value returns the last output, 0 before the first sample.
func (f *Filter) Value() float64 { return f.value }

// Gamma returns the last smoothing coefficient fed to the recursion. In
// fixed mode it is constant; in adaptive mode it is 0 until the first
// steady-state sample.
func (f *Filter) Gamma() float64 { return f.gamma }

// Trend returns the current trend label.
func (f *Filter) Trend() model.Trend { return f.trend }

// SampleIndex returns the number of samples consumed.
func (f *Filter) SampleIndex() int { return f.sampleIndex }

// State returns the lifecycle phase.
func (f *Filter) State() FilterState {
	switch {
	case f.sampleIndex <= f.cfg.Order:
		return StateBootstrapping
	case f.sampleIndex <= 2*f.cfg.Length:
		return StateWarmingUp
	default:
		return StateSteady
	}
}

// Ready reports whether the output is fully formed (STEADY).
func (f *Filter) Ready() bool { return f.State() == StateSteady }

// Config returns the construction parameters.
func (f *Filter) Config() Config { return f.cfg }

// Name returns the result name, e.g. "ALF_4_10".
func (f *Filter) Name() string { return f.cfg.Name() }

// Peek returns the output the filter WOULD produce if price were the
// next sample, without mutating any state. Used to evaluate forming
// bars: the real close later arrives via Step/Update.
func (f *Filter) Peek(price float64) float64 {
	return f.clone().Step(price)
}

// PeekCandle is Peek over a bar's applied price.
func (f *Filter) PeekCandle(c model.Candle) float64 {
	return f.Peek(c.Price(f.cfg.Applied))
}

// Reset returns the filter to its freshly constructed state.
func (f *Filter) Reset() {
	for i := range f.cur {
		f.cur[i] = 0
		f.prev[i] = 0
	}
	f.sampleIndex = 0
	f.value = 0
	f.prevValue = 0
	f.hasPrev = false
	f.trend = model.TrendNeutral
	if f.est != nil {
		f.est.reset()
		f.gamma = 0
	} else {
		f.gamma = clampGamma(f.cfg.FixedGamma())
	}
}

// clone deep-copies the filter state. Peek and snapshot tests rely on
// the clone being fully independent.
func (f *Filter) clone() *Filter {
	c := &Filter{
		cfg:         f.cfg,
		cur:         append([]float64(nil), f.cur...),
		prev:        append([]float64(nil), f.prev...),
		gamma:       f.gamma,
		sampleIndex: f.sampleIndex,
		value:       f.value,
		prevValue:   f.prevValue,
		hasPrev:     f.hasPrev,
		trend:       f.trend,
	}
	if f.est != nil {
		c.est = f.est.clone()
	}
	return c
}

func clampGamma(g float64) float64 {
	if g < gammaMin {
		return gammaMin
	}
	if g > gammaMax {
		return gammaMax
	}
	return g
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
