package laguerre

import (
	"math"
	"testing"

	"laguerre-systemv1/internal/verify"
)

// Peek must project exactly the value the next Step will produce, and
// must leave the filter untouched. Checked over a long synthetic series
// with the same comparison harness the conversion verifier uses.
func TestPeekStepParity(t *testing.T) {
	configs := []Config{
		{Order: 4, Length: 10},
		{Order: 2, Length: 2, Adaptive: true, SmoothMode: SmoothMedian, SmoothPeriod: 2},
		{Order: 3, Length: 8, Adaptive: true, SmoothMode: SmoothEMA, SmoothPeriod: 5},
	}

	prices := syntheticSeries(400)

	for _, cfg := range configs {
		f, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: %v", cfg.Name(), err)
		}

		peeked := make([]float64, len(prices))
		stepped := make([]float64, len(prices))
		for i, p := range prices {
			peeked[i] = f.Peek(p)
			stepped[i] = f.Step(p)
			if !f.Ready() {
				peeked[i] = math.NaN()
				stepped[i] = math.NaN()
			}
		}

		rep, err := verify.Compare(peeked, stepped, 1e-12)
		if err != nil {
			t.Fatalf("%s: %v", cfg.Name(), err)
		}
		if !rep.Valid {
			t.Errorf("%s: peek/step divergence: match=%.4f%% maxDev=%g", cfg.Name(), rep.MatchPct, rep.MaxDev)
		}
		if rep.Compared == 0 {
			t.Errorf("%s: series never left warm-up (%d samples)", cfg.Name(), rep.Samples)
		}
	}
}

// The batch wrapper must reproduce the streaming output sample for
// sample, warm-up padding included.
func TestRunSeriesStreamingParity(t *testing.T) {
	cfg := Config{Order: 4, Length: 10, Adaptive: true, SmoothMode: SmoothLWMA, SmoothPeriod: 5}
	prices := syntheticSeries(300)

	batch, err := RunSeries(cfg, prices)
	if err != nil {
		t.Fatal(err)
	}

	f, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	streamed := make([]float64, len(prices))
	for i, p := range prices {
		out := f.Step(p)
		if !f.Ready() {
			streamed[i] = math.NaN()
			continue
		}
		streamed[i] = out
	}

	rep, err := verify.Compare(batch.Values, streamed, 1e-12)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid {
		t.Errorf("batch/streaming divergence: match=%.4f%% maxDev=%g", rep.MatchPct, rep.MaxDev)
	}
}

// syntheticSeries builds a deterministic trending series with a
// superimposed oscillation, enough variation to drive the adaptive
// gamma through its range.
func syntheticSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 195.0 + 0.05*x + 1.5*math.Sin(x/7.0) + 0.4*math.Cos(x/3.0)
	}
	return out
}
