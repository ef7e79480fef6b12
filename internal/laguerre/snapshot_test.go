package laguerre

import (
	"encoding/json"
	"testing"
	"time"

	"laguerre-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Filter snapshot round-trips
// ────────────────────────────────────────────────────────────

func TestFilter_SnapshotRoundTrip_Fixed(t *testing.T) {
	f := mustNew(t, fixedConfig(4, 10))
	for _, p := range []float64{100, 101, 102, 101, 103, 104, 103} {
		f.Step(p)
	}
	snap := f.Snapshot()

	f2 := mustNew(t, fixedConfig(4, 10))
	if err := f2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	assertClose(t, "value after restore", f2.Value(), f.Value(), 0)
	if f2.SampleIndex() != f.SampleIndex() || f2.State() != f.State() || f2.Trend() != f.Trend() {
		t.Fatalf("restored index/state/trend %d/%s/%s, want %d/%s/%s",
			f2.SampleIndex(), f2.State(), f2.Trend(), f.SampleIndex(), f.State(), f.Trend())
	}

	// Both must continue bit-for-bit identical.
	for _, p := range []float64{105, 106, 105, 107, 108} {
		assertClose(t, "continued step", f2.Step(p), f.Step(p), 0)
	}
}

func TestFilter_SnapshotRoundTrip_AdaptiveWindowed(t *testing.T) {
	// SMA smoothing exercises the raw-ratio ring in the snapshot.
	cfg := adaptiveConfig(3, 4, 3, SmoothSMA)
	f := mustNew(t, cfg)
	for _, p := range []float64{100, 102, 101, 104, 103, 106, 104, 108, 107, 110, 109, 112} {
		f.Step(p)
	}
	snap := f.Snapshot()

	f2 := mustNew(t, cfg)
	if err := f2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}
	assertClose(t, "value after restore", f2.Value(), f.Value(), 0)
	assertClose(t, "gamma after restore", f2.Gamma(), f.Gamma(), 0)

	for _, p := range []float64{111, 114, 113, 116, 115} {
		assertClose(t, "continued step", f2.Step(p), f.Step(p), 0)
		assertClose(t, "continued gamma", f2.Gamma(), f.Gamma(), 0)
	}
}

func TestFilter_SnapshotRoundTrip_AdaptiveEMA(t *testing.T) {
	// EMA smoothing exercises the running-accumulator fields instead of
	// the ring.
	cfg := adaptiveConfig(2, 3, 4, SmoothEMA)
	f := mustNew(t, cfg)
	for _, p := range []float64{1.10, 1.12, 1.11, 1.14, 1.13, 1.16, 1.14, 1.18, 1.17} {
		f.Step(p)
	}
	snap := f.Snapshot()

	f2 := mustNew(t, cfg)
	if err := f2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}
	for _, p := range []float64{1.19, 1.18, 1.21, 1.20} {
		assertClose(t, "continued step", f2.Step(p), f.Step(p), 0)
	}
}

func TestFilter_SnapshotMidWarmup(t *testing.T) {
	// Snapshot during warm-up must carry the deviation window so the
	// restored filter's first steady gamma matches the uninterrupted
	// run.
	cfg := adaptiveConfig(2, 4, 2, SmoothLWMA)
	f := mustNew(t, cfg)
	prices := []float64{100, 103, 101, 105, 102, 107, 104, 109, 106, 111}
	for _, p := range prices[:5] { // mid warm-up (steady starts at sample 9)
		f.Step(p)
	}
	snap := f.Snapshot()

	f2 := mustNew(t, cfg)
	if err := f2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}
	for _, p := range prices[5:] {
		assertClose(t, "continued step", f2.Step(p), f.Step(p), 0)
		assertClose(t, "continued gamma", f2.Gamma(), f.Gamma(), 0)
	}
	if !f.Ready() || !f2.Ready() {
		t.Fatalf("both filters should be steady: %v/%v", f.Ready(), f2.Ready())
	}
}

func TestFilter_RestoreRejectsMismatchedConfig(t *testing.T) {
	f := mustNew(t, fixedConfig(4, 10))
	for _, p := range []float64{100, 101, 102} {
		f.Step(p)
	}
	snap := f.Snapshot()

	wrongOrder := mustNew(t, fixedConfig(5, 10))
	if err := wrongOrder.RestoreFromSnapshot(snap); err == nil {
		t.Error("expected error restoring into different order")
	}

	wrongMode := mustNew(t, adaptiveConfig(4, 10, 5, SmoothSMA))
	if err := wrongMode.RestoreFromSnapshot(snap); err == nil {
		t.Error("expected error restoring fixed snapshot into adaptive filter")
	}

	// The failed restore must leave the target untouched.
	if wrongOrder.SampleIndex() != 0 {
		t.Errorf("failed restore mutated the filter: index=%d", wrongOrder.SampleIndex())
	}
}

// ────────────────────────────────────────────────────────────
// Engine snapshot / restore
// ────────────────────────────────────────────────────────────

func engineFixtureConfigs() []TFFilterConfig {
	return []TFFilterConfig{
		{TF: 3600, Filters: []Config{
			adaptiveConfig(2, 2, 2, SmoothSMA),
			fixedConfig(4, 10),
		}},
		{TF: 86400, Filters: []Config{fixedConfig(2, 5)}},
	}
}

func feedEngineFixture(t *testing.T, e *Engine) {
	t.Helper()
	prices := []float64{100, 102, 101, 104, 103, 106, 104, 108}
	for _, p := range prices {
		e.Process(makeBar("GBPJPY", 3600, p))
		e.Process(makeBar("EURUSD", 3600, p/100))
	}
	for _, p := range prices[:4] {
		e.Process(makeBar("GBPJPY", 86400, p))
	}
}

func TestEngine_SnapshotRoundTripThroughJSON(t *testing.T) {
	engine := mustEngine(t, engineFixtureConfigs())
	feedEngineFixture(t, engine)

	snap, err := SnapshotEngine(engine, "1724407200000-0")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 1 || snap.StreamID != "1724407200000-0" {
		t.Fatalf("snapshot header: version=%d streamID=%s", snap.Version, snap.StreamID)
	}
	// 2 symbols on TF=3600 + 1 on TF=86400
	if len(snap.Symbols) != 3 {
		t.Fatalf("expected 3 symbol snapshots, got %d", len(snap.Symbols))
	}

	// Serialize exactly the way the snapshot store does.
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var decoded EngineSnapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}

	restored, err := RestoreEngine(engineFixtureConfigs(), &decoded)
	if err != nil {
		t.Fatal(err)
	}

	// Both engines must produce identical results from here on.
	for _, p := range []float64{107, 110, 109, 112} {
		want := engine.Process(makeBar("GBPJPY", 3600, p))
		got := restored.Process(makeBar("GBPJPY", 3600, p))
		if len(got) != len(want) {
			t.Fatalf("result count %d vs %d", len(got), len(want))
		}
		for i := range want {
			assertClose(t, "restored "+want[i].Name+" value", got[i].Value, want[i].Value, 0)
			assertClose(t, "restored "+want[i].Name+" gamma", got[i].Gamma, want[i].Gamma, 0)
			if got[i].Trend != want[i].Trend || got[i].Ready != want[i].Ready {
				t.Errorf("%s: trend/ready %s/%v vs %s/%v",
					want[i].Name, got[i].Trend, got[i].Ready, want[i].Trend, want[i].Ready)
			}
		}
	}
}

func TestRestoreEngine_ToleratesConfigChanges(t *testing.T) {
	engine := mustEngine(t, engineFixtureConfigs())
	feedEngineFixture(t, engine)

	snap, err := SnapshotEngine(engine, "0-0")
	if err != nil {
		t.Fatal(err)
	}

	// New config: TF=86400 dropped, a brand-new filter added on 3600.
	newConfigs := []TFFilterConfig{
		{TF: 3600, Filters: []Config{
			adaptiveConfig(2, 2, 2, SmoothSMA), // survives with state
			fixedConfig(8, 20),                 // brand new, cold
		}},
	}
	restored, err := RestoreEngine(newConfigs, snap)
	if err != nil {
		t.Fatal(err)
	}

	results := restored.Process(makeBar("GBPJPY", 3600, 107))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// The surviving filter was 8 samples deep; this bar makes 9.
	if !results[0].Ready {
		t.Errorf("surviving filter should still be steady")
	}
	// The new filter has seen exactly one bar.
	if results[1].Ready {
		t.Errorf("cold filter cannot be ready after one bar")
	}
	if results[1].Value != 107 {
		t.Errorf("cold filter first output=%.4f, want the raw price 107", results[1].Value)
	}
}

func TestRestoreEngine_SkipsRemovedTF(t *testing.T) {
	engine := mustEngine(t, engineFixtureConfigs())
	feedEngineFixture(t, engine)
	snap, err := SnapshotEngine(engine, "0-0")
	if err != nil {
		t.Fatal(err)
	}

	restored, err := RestoreEngine([]TFFilterConfig{
		{TF: 86400, Filters: []Config{fixedConfig(2, 5)}},
	}, snap)
	if err != nil {
		t.Fatal(err)
	}
	// TF=3600 snapshots are dropped; TF=86400 state survives.
	if r := restored.Process(makeBar("GBPJPY", 86400, 105)); len(r) != 1 {
		t.Fatalf("expected 1 result on surviving TF, got %d", len(r))
	}
}

// ────────────────────────────────────────────────────────────
// Restorer chain
// ────────────────────────────────────────────────────────────

type fakeBarReader struct {
	bars []model.Candle
}

func (r *fakeBarReader) ReadAllBars(tf int, afterTS int64) ([]model.Candle, error) {
	out := make([]model.Candle, 0, len(r.bars))
	for _, b := range r.bars {
		if b.TF == tf {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestRestorer_NilSnapshotColdStarts(t *testing.T) {
	r := NewRestorer(engineFixtureConfigs())
	engine, err := r.RestoreFromSnap(nil)
	if err != nil {
		t.Fatal(err)
	}
	results := engine.Process(makeBar("GBPJPY", 3600, 100))
	if len(results) != 2 {
		t.Fatalf("cold engine: expected 2 results, got %d", len(results))
	}
	if results[0].Ready || results[1].Ready {
		t.Error("cold engine cannot be ready after one bar")
	}
}

func TestRestorer_BackfillWarmsUpColdEngine(t *testing.T) {
	configs := []TFFilterConfig{
		{TF: 3600, Filters: []Config{adaptiveConfig(2, 2, 2, SmoothSMA)}},
	}
	r := NewRestorer(configs)
	engine, err := r.RestoreFromSnap(nil)
	if err != nil {
		t.Fatal(err)
	}

	reader := &fakeBarReader{}
	for i, p := range []float64{100, 102, 101, 104, 103, 106, 104, 108} {
		b := makeBar("GBPJPY", 3600, p)
		b.TS = b.TS.Add(time.Duration(i) * time.Hour)
		reader.bars = append(reader.bars, b)
	}

	// The filter needs steadyStart(4) + SmoothPeriod(2) + 1 = 7 trailing
	// bars, so the backfill trims the 8 stored bars down to 7.
	var callbacks int
	fed := r.BackfillFromSQLite(engine, reader, func(results []model.FilterResult) {
		callbacks++
	})
	if fed != 7 {
		t.Fatalf("backfilled %d bars, want 7", fed)
	}
	if callbacks != 7 {
		t.Fatalf("onResults called %d times, want 7", callbacks)
	}

	// 7 backfilled samples put the next live bar past steady state.
	results := engine.Process(makeBar("GBPJPY", 3600, 107))
	if !results[0].Ready {
		t.Error("backfilled engine should be steady")
	}
}

func TestRestorer_ReplayBarsSkipsForming(t *testing.T) {
	configs := []TFFilterConfig{
		{TF: 3600, Filters: []Config{fixedConfig(2, 2)}},
	}
	r := NewRestorer(configs)
	engine, err := r.RestoreFromSnap(nil)
	if err != nil {
		t.Fatal(err)
	}

	forming := makeBar("GBPJPY", 3600, 102)
	forming.Forming = true
	bars := []model.Candle{
		makeBar("GBPJPY", 3600, 100),
		forming,
		makeBar("GBPJPY", 3600, 101),
	}
	if n := r.ReplayBars(engine, bars); n != 2 {
		t.Fatalf("replayed %d bars, want 2 (forming skipped)", n)
	}
}
