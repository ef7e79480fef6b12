package laguerre

import (
	"context"
	"math"
	"testing"
	"time"

	"laguerre-systemv1/internal/model"
)

func makeBar(symbol string, tf int, price float64) model.Candle {
	p := model.PriceToPoints(price)
	return model.Candle{
		Symbol:  symbol,
		TF:      tf,
		TS:      time.Now().UTC(),
		Open:    p,
		High:    p + 100,
		Low:     p - 100,
		Close:   p,
		Volume:  100,
		Forming: false,
	}
}

func mustEngine(t *testing.T, configs []TFFilterConfig) *Engine {
	t.Helper()
	e, err := NewEngine(configs)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngine_SingleFilter(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{adaptiveConfig(2, 2, 2, SmoothSMA)}},
	})

	// Flat prices keep every stage pinned to the input, so the value is
	// exactly 100 regardless of gamma. Steady from the 5th bar on
	// (order=2, length=2 → warm-up covers 4 samples).
	for i := 0; i < 8; i++ {
		results := engine.Process(makeBar("GBPJPY", 3600, 100))
		if len(results) != 1 {
			t.Fatalf("bar %d: expected 1 result, got %d", i, len(results))
		}
		r := results[0]
		if r.Name != "ALF_2_2_SMA_2" {
			t.Errorf("bar %d: name=%s, want ALF_2_2_SMA_2", i, r.Name)
		}
		if r.Symbol != "GBPJPY" || r.TF != 3600 {
			t.Errorf("bar %d: symbol/TF = %s/%d", i, r.Symbol, r.TF)
		}
		wantReady := i >= 4
		if r.Ready != wantReady {
			t.Errorf("bar %d: Ready=%v, want %v", i, r.Ready, wantReady)
		}
		if math.Abs(r.Value-100.0) > 1e-9 {
			t.Errorf("bar %d: value=%.6f, want 100", i, r.Value)
		}
	}
}

func TestEngine_MultiFilter(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{
			fixedConfig(4, 10),
			adaptiveConfig(2, 2, 2, SmoothEMA),
		}},
	})

	for i := 0; i < 12; i++ {
		results := engine.Process(makeBar("EURUSD", 3600, 1.1+float64(i)*0.001))
		if len(results) != 2 {
			t.Fatalf("bar %d: expected 2 results, got %d", i, len(results))
		}
		if results[0].Name != "ALF_4_10" || results[1].Name != "ALF_2_2_EMA_2" {
			t.Fatalf("bar %d: names %s/%s", i, results[0].Name, results[1].Name)
		}
	}
}

func TestEngine_MultiTF(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 5)}},
		{TF: 86400, Filters: []Config{fixedConfig(4, 10)}},
	})

	r1 := engine.Process(makeBar("GBPJPY", 3600, 187.5))
	if len(r1) != 1 || r1[0].TF != 3600 {
		t.Fatalf("TF=3600: got %d results, TF=%d", len(r1), r1[0].TF)
	}

	rD := engine.Process(makeBar("GBPJPY", 86400, 187.5))
	if len(rD) != 1 || rD[0].TF != 86400 {
		t.Fatalf("TF=86400: got %d results, TF=%d", len(rD), rD[0].TF)
	}

	if rNone := engine.Process(makeBar("GBPJPY", 900, 187.5)); len(rNone) != 0 {
		t.Errorf("unconfigured TF=900: expected 0 results, got %d", len(rNone))
	}
}

func TestEngine_IndependentSymbolState(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 2)}},
	})

	// One symbol rising, one flat — their filters must not bleed into
	// each other.
	var rising, flat model.FilterResult
	for i := 0; i < 10; i++ {
		rs := engine.Process(makeBar("GBPJPY", 3600, 187+float64(i)))
		fs := engine.Process(makeBar("EURUSD", 3600, 1.1))
		rising, flat = rs[0], fs[0]
	}

	if rising.Trend != model.TrendUp {
		t.Errorf("rising symbol trend=%s, want UP", rising.Trend)
	}
	if math.Abs(flat.Value-1.1) > 1e-9 {
		t.Errorf("flat symbol value=%.6f, want 1.1", flat.Value)
	}
	if rising.Value <= 187 {
		t.Errorf("rising symbol value=%.4f, want above the first price", rising.Value)
	}
}

func TestEngine_InvalidConfigRejected(t *testing.T) {
	if _, err := NewEngine([]TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(0, 10)}},
	}); err == nil {
		t.Fatal("expected error for order=0")
	}

	if _, err := NewEngine([]TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 2)}},
		{TF: 3600, Filters: []Config{fixedConfig(4, 10)}},
	}); err == nil {
		t.Fatal("expected error for duplicate TF")
	}

	if _, err := NewEngine([]TFFilterConfig{
		{TF: 0, Filters: []Config{fixedConfig(2, 2)}},
	}); err == nil {
		t.Fatal("expected error for TF=0")
	}
}

func TestEngine_RunSkipsFormingBars(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 2)}},
	})

	forming := makeBar("GBPJPY", 3600, 187.5)
	forming.Forming = true

	barCh := make(chan model.Candle, 10)
	resCh := make(chan model.FilterResult, 10)

	go func() {
		barCh <- forming
		close(barCh)
	}()

	engine.Run(context.Background(), barCh, resCh)

	select {
	case <-resCh:
		t.Fatal("should not receive results for forming bars")
	default:
		// expected
	}
}

func TestProcessPeek_NilBeforeProcess(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 2)}},
	})

	forming := makeBar("GBPJPY", 3600, 187.5)
	forming.Forming = true

	if results := engine.ProcessPeek(forming); results != nil {
		t.Fatalf("expected nil results before any Process, got %d", len(results))
	}
}

func TestProcessPeek_LiveResults(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{adaptiveConfig(2, 2, 2, SmoothSMA)}},
	})

	// Mirror filter fed the same bars — ProcessPeek must agree with a
	// direct Peek on identical state.
	mirror := mustNew(t, adaptiveConfig(2, 2, 2, SmoothSMA))

	prices := []float64{100, 102, 101, 104, 103, 106}
	for _, p := range prices {
		engine.Process(makeBar("GBPJPY", 3600, p))
		mirror.Update(makeBar("GBPJPY", 3600, p))
	}

	forming := makeBar("GBPJPY", 3600, 108)
	forming.Forming = true

	results := engine.ProcessPeek(forming)
	if len(results) != 1 {
		t.Fatalf("expected 1 peek result, got %d", len(results))
	}
	if !results[0].Live {
		t.Error("expected Live=true on peek result")
	}
	if !results[0].Ready {
		t.Error("expected Ready=true on peek result")
	}
	assertClose(t, "peek value", results[0].Value, mirror.PeekCandle(forming), 0)
}

func TestProcessPeek_DoesNotMutateState(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{adaptiveConfig(2, 2, 2, SmoothWilder)}},
	})

	for _, p := range []float64{100, 102, 101, 104, 103} {
		engine.Process(makeBar("GBPJPY", 3600, p))
	}

	forming := makeBar("GBPJPY", 3600, 250)
	forming.Forming = true
	engine.ProcessPeek(forming)

	// An untouched engine fed the same completed bars must agree on the
	// next result exactly.
	control := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{adaptiveConfig(2, 2, 2, SmoothWilder)}},
	})
	for _, p := range []float64{100, 102, 101, 104, 103} {
		control.Process(makeBar("GBPJPY", 3600, p))
	}

	after := engine.Process(makeBar("GBPJPY", 3600, 106))
	want := control.Process(makeBar("GBPJPY", 3600, 106))
	assertClose(t, "value after peek", after[0].Value, want[0].Value, 0)
	assertClose(t, "gamma after peek", after[0].Gamma, want[0].Gamma, 0)
}

// ────────────────────────────────────────────────────────────
// Config reload
// ────────────────────────────────────────────────────────────

func TestReloadConfigs_PreservesMatchingState(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{adaptiveConfig(2, 2, 2, SmoothSMA)}},
	})

	prices := []float64{100, 102, 101, 104, 103, 106}
	for _, p := range prices {
		engine.Process(makeBar("GBPJPY", 3600, p))
	}

	// Add a second filter; the first must keep its accumulated state.
	_, _, err := engine.ReloadConfigs([]TFFilterConfig{
		{TF: 3600, Filters: []Config{
			adaptiveConfig(2, 2, 2, SmoothSMA),
			fixedConfig(4, 10),
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Control: uninterrupted engine with both filters from the start.
	control := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{adaptiveConfig(2, 2, 2, SmoothSMA)}},
	})
	for _, p := range prices {
		control.Process(makeBar("GBPJPY", 3600, p))
	}

	got := engine.Process(makeBar("GBPJPY", 3600, 104))
	want := control.Process(makeBar("GBPJPY", 3600, 104))

	if len(got) != 2 {
		t.Fatalf("expected 2 results after reload, got %d", len(got))
	}
	// Preserved filter continues exactly; reloads must not reset warm-up.
	assertClose(t, "preserved value", got[0].Value, want[0].Value, 0)
	if !got[0].Ready {
		t.Error("preserved filter lost its Ready state")
	}
	// New filter starts cold: first bar ever, still bootstrapping.
	if got[1].Name != "ALF_4_10" || got[1].Ready {
		t.Errorf("new filter: name=%s ready=%v, want cold ALF_4_10", got[1].Name, got[1].Ready)
	}
}

func TestReloadConfigs_UnchangedIsNoop(t *testing.T) {
	cfgs := []TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 2)}},
	}
	engine := mustEngine(t, cfgs)
	for i := 0; i < 6; i++ {
		engine.Process(makeBar("GBPJPY", 3600, 187+float64(i)))
	}

	preserved, created, err := engine.ReloadConfigs(cfgs)
	if err != nil {
		t.Fatal(err)
	}
	if preserved != 1 || created != 0 {
		t.Errorf("preserved=%d created=%d, want 1/0", preserved, created)
	}
}

func TestReloadConfigs_RejectsInvalid(t *testing.T) {
	engine := mustEngine(t, []TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 2)}},
	})
	if _, _, err := engine.ReloadConfigs([]TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 0)}},
	}); err == nil {
		t.Fatal("expected error for invalid reload config")
	}
}

// ────────────────────────────────────────────────────────────
// Backfill helpers
// ────────────────────────────────────────────────────────────

func TestTrailingPerSymbol(t *testing.T) {
	bars := []model.Candle{
		makeBar("A", 3600, 1), makeBar("B", 3600, 10),
		makeBar("A", 3600, 2), makeBar("A", 3600, 3),
		makeBar("B", 3600, 11), makeBar("A", 3600, 4),
	}
	out := trailingPerSymbol(bars, 2)

	counts := map[string]int{}
	for _, b := range out {
		counts[b.Symbol]++
	}
	if counts["A"] != 2 || counts["B"] != 2 {
		t.Fatalf("counts=%v, want 2 per symbol", counts)
	}
	// Last two A bars are 3 and 4; both B bars survive.
	if out[len(out)-1].Close != model.PriceToPoints(4) {
		t.Errorf("expected the newest A bar to survive the trim")
	}
}
