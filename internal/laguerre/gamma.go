package laguerre

import (
	"math"
	"sort"
)

// floatRing is a fixed-capacity circular window over float64 samples.
// Once full, each push evicts the oldest entry.
type floatRing struct {
	buf   []float64
	idx   int
	count int
}

func newFloatRing(capacity int) *floatRing {
	return &floatRing{buf: make([]float64, capacity)}
}

func (r *floatRing) push(v float64) {
	r.buf[r.idx] = v
	r.idx = (r.idx + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *floatRing) size() int { return r.count }

// at returns the sample lag entries back from the newest (at(0) is the
// newest). lag must be < size().
func (r *floatRing) at(lag int) float64 {
	pos := r.idx - 1 - lag
	if pos < 0 {
		pos += len(r.buf)
	}
	return r.buf[pos]
}

// minMax scans the window. NaN entries are skipped so one bad sample
// cannot poison the range for the rest of the window's lifetime.
func (r *floatRing) minMax() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for lag := 0; lag < r.count; lag++ {
		v := r.at(lag)
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// appendOldestFirst appends the window contents in arrival order, for
// snapshots.
func (r *floatRing) appendOldestFirst(dst []float64) []float64 {
	for lag := r.count - 1; lag >= 0; lag-- {
		dst = append(dst, r.at(lag))
	}
	return dst
}

func (r *floatRing) reset() {
	r.idx = 0
	r.count = 0
}

func (r *floatRing) clone() *floatRing {
	return &floatRing{
		buf:   append([]float64(nil), r.buf...),
		idx:   r.idx,
		count: r.count,
	}
}

// gammaEstimator turns the per-bar deviation between price and the
// previous filter output into a smoothed gamma in [0,1].
//
// The raw signal is an efficiency ratio: the current deviation's
// position inside the min/max range of the trailing Length-deep
// deviation window. The ratio is then smoothed by one of five
// strategies over SmoothPeriod entries. The smoothers consume the RAW
// ratio series — each smoothed value is published, never fed back into
// the smoother's own window, so one spike decays predictably instead of
// echoing.
type gammaEstimator struct {
	length int
	period int
	mode   SmoothMode

	devs *floatRing // trailing |price - prevOutput|, length deep
	raws *floatRing // trailing raw efficiency ratios, period deep

	ema     float64 // running EMA/Wilder state
	emaInit bool

	scratch []float64 // reused by the median sort
}

func newGammaEstimator(length, period int, mode SmoothMode) *gammaEstimator {
	e := &gammaEstimator{
		length: length,
		period: period,
		mode:   mode,
		devs:   newFloatRing(length),
	}
	switch mode {
	case SmoothSMA, SmoothLWMA:
		e.raws = newFloatRing(period)
	case SmoothMedian:
		e.raws = newFloatRing(period)
		e.scratch = make([]float64, 0, period)
	}
	return e
}

// recordDeviation pushes one deviation sample. Called on every bar,
// warm-up included, so the window is primed by the time the recursion
// starts consuming gammas.
func (e *gammaEstimator) recordDeviation(dev float64) {
	e.devs.push(dev)
}

// nextGamma computes the smoothed gamma for the sample whose deviation
// was just recorded. Always returns a finite value in [0,1]: degenerate
// windows (flat, or poisoned by NaN) fall back to 0.
func (e *gammaEstimator) nextGamma(dev float64) float64 {
	lo, hi := e.devs.minMax()
	eff := 0.0
	if hi > lo {
		eff = (dev - lo) / (hi - lo)
	}
	if math.IsNaN(eff) {
		eff = 0
	}

	g := e.smooth(eff)
	if math.IsNaN(g) {
		return 0
	}
	return g
}

func (e *gammaEstimator) smooth(eff float64) float64 {
	switch e.mode {
	case SmoothEMA:
		return e.smoothEMA(eff, 2.0/float64(e.period+1))
	case SmoothWilder:
		// Wilder's smoothing is an EMA over the doubled-minus-one
		// period: alpha = 1/period.
		return e.smoothEMA(eff, 2.0/float64(2*e.period))
	case SmoothLWMA:
		e.raws.push(eff)
		return e.lwma()
	case SmoothMedian:
		e.raws.push(eff)
		return e.median()
	default:
		e.raws.push(eff)
		return e.mean()
	}
}

// smoothEMA seeds from the first raw value, then blends.
func (e *gammaEstimator) smoothEMA(eff, alpha float64) float64 {
	if !e.emaInit {
		e.ema = eff
		e.emaInit = true
		return e.ema
	}
	e.ema = alpha*eff + (1.0-alpha)*e.ema
	return e.ema
}

// mean averages the available window; partial windows use whatever has
// arrived so far.
func (e *gammaEstimator) mean() float64 {
	n := e.raws.size()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for lag := 0; lag < n; lag++ {
		sum += e.raws.at(lag)
	}
	return sum / float64(n)
}

// lwma weights each entry by period minus its lag, newest heaviest.
func (e *gammaEstimator) lwma() float64 {
	n := e.raws.size()
	num, den := 0.0, 0.0
	for lag := 0; lag < n; lag++ {
		w := float64(e.period - lag)
		num += w * e.raws.at(lag)
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// median sorts a copy of the window; even sizes average the middle
// pair.
func (e *gammaEstimator) median() float64 {
	n := e.raws.size()
	if n == 0 {
		return 0
	}
	e.scratch = e.scratch[:0]
	for lag := 0; lag < n; lag++ {
		e.scratch = append(e.scratch, e.raws.at(lag))
	}
	sort.Float64s(e.scratch)
	if n%2 == 1 {
		return e.scratch[n/2]
	}
	return (e.scratch[n/2-1] + e.scratch[n/2]) / 2.0
}

func (e *gammaEstimator) reset() {
	e.devs.reset()
	if e.raws != nil {
		e.raws.reset()
	}
	e.ema = 0
	e.emaInit = false
}

func (e *gammaEstimator) clone() *gammaEstimator {
	c := &gammaEstimator{
		length:  e.length,
		period:  e.period,
		mode:    e.mode,
		devs:    e.devs.clone(),
		ema:     e.ema,
		emaInit: e.emaInit,
	}
	if e.raws != nil {
		c.raws = e.raws.clone()
	}
	if e.scratch != nil {
		c.scratch = make([]float64, 0, e.period)
	}
	return c
}
