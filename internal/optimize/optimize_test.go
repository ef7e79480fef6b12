package optimize

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/perf"
)

func smallSpace() Space {
	return Space{
		Orders:        []int{2, 4},
		Lengths:       []int{5, 10},
		Adaptive:      []bool{false, true},
		SmoothPeriods: []int{3},
		SmoothModes:   []laguerre.SmoothMode{laguerre.SmoothSMA, laguerre.SmoothEMA},
	}
}

func TestSpace_Candidates(t *testing.T) {
	cands := smallSpace().Candidates()
	// 2 orders x 2 lengths x (1 fixed + 1 period x 2 modes adaptive) = 12.
	if len(cands) != 12 {
		t.Fatalf("got %d candidates, want 12", len(cands))
	}

	keys := make(map[string]bool)
	for _, cfg := range cands {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("invalid candidate emitted: %v", err)
		}
		if keys[cfg.Key()] {
			t.Fatalf("duplicate candidate %s", cfg.Key())
		}
		keys[cfg.Key()] = true
	}
}

func TestSpace_InvalidValuesFiltered(t *testing.T) {
	s := Space{
		Orders:   []int{0, 2}, // order 0 is invalid
		Lengths:  []int{5},
		Adaptive: []bool{false},
	}
	cands := s.Candidates()
	if len(cands) != 1 || cands[0].Order != 2 {
		t.Fatalf("invalid orders should be dropped: %+v", cands)
	}
}

// scoreByParams gives each candidate a deterministic score so the best
// pick is known in advance.
func scoreByParams(calls *int64) Objective {
	return func(cfg laguerre.Config) (float64, map[string]float64, error) {
		atomic.AddInt64(calls, 1)
		score := float64(cfg.Order*100 + cfg.Length)
		if cfg.Adaptive {
			score += 0.5
		}
		return score, map[string]float64{"score": score}, nil
	}
}

func TestGridSearch_FindsBest(t *testing.T) {
	var calls int64
	res, err := GridSearch(context.Background(), smallSpace(), scoreByParams(&calls), true, 4)
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}

	if calls != 12 || res.Iterations != 12 {
		t.Fatalf("evaluated %d/%d, want 12", calls, res.Iterations)
	}
	// Highest score: order=4, length=10, adaptive -> 410.5.
	if res.Params.Order != 4 || res.Params.Length != 10 || !res.Params.Adaptive {
		t.Fatalf("best params wrong: %+v", res.Params)
	}
	if res.Score != 410.5 {
		t.Fatalf("best score = %v, want 410.5", res.Score)
	}
	if res.Method != "grid" || len(res.History) != 12 {
		t.Fatalf("result bookkeeping wrong: method=%s history=%d", res.Method, len(res.History))
	}
}

func TestGridSearch_LowerIsBetter(t *testing.T) {
	var calls int64
	res, err := GridSearch(context.Background(), smallSpace(), scoreByParams(&calls), false, 2)
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	// Lowest score: order=2, length=5, fixed -> 205.
	if res.Params.Order != 2 || res.Params.Length != 5 || res.Params.Adaptive {
		t.Fatalf("best params wrong: %+v", res.Params)
	}
	if res.Score != 205 {
		t.Fatalf("best score = %v, want 205", res.Score)
	}
}

func TestGridSearch_SkipsFailingCandidates(t *testing.T) {
	obj := func(cfg laguerre.Config) (float64, map[string]float64, error) {
		if cfg.Adaptive {
			return 0, nil, context.DeadlineExceeded // arbitrary error
		}
		return float64(cfg.Length), nil, nil
	}
	res, err := GridSearch(context.Background(), smallSpace(), obj, true, 2)
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	if res.Params.Adaptive {
		t.Fatalf("failing candidates must not win: %+v", res.Params)
	}
	if len(res.History) != 4 { // only the 4 fixed candidates scored
		t.Fatalf("history = %d, want 4", len(res.History))
	}
}

func TestRandomSearch_SeededAndDeduplicated(t *testing.T) {
	var calls int64
	res1, err := RandomSearch(context.Background(), smallSpace(), scoreByParams(&calls), true, 2, 6, 42)
	if err != nil {
		t.Fatalf("RandomSearch: %v", err)
	}
	if res1.Iterations != 6 {
		t.Fatalf("iterations = %d, want 6", res1.Iterations)
	}
	if res1.Method != "random" {
		t.Fatalf("method = %s", res1.Method)
	}

	// Same seed reproduces the same winner.
	res2, err := RandomSearch(context.Background(), smallSpace(), scoreByParams(&calls), true, 2, 6, 42)
	if err != nil {
		t.Fatalf("RandomSearch: %v", err)
	}
	if res1.Params.Key() != res2.Params.Key() || res1.Score != res2.Score {
		t.Fatalf("seeded runs differ: %+v vs %+v", res1.Params, res2.Params)
	}

	// Candidate keys within one run never repeat.
	seen := make(map[string]bool)
	for _, h := range res1.History {
		if seen[h.Params.Key()] {
			t.Fatalf("duplicate sampled candidate %s", h.Params.Key())
		}
		seen[h.Params.Key()] = true
	}
}

func TestRandomSearch_CapsAtSpaceSize(t *testing.T) {
	// The space only holds 12 distinct configs; asking for 50 must not hang.
	var calls int64
	res, err := RandomSearch(context.Background(), smallSpace(), scoreByParams(&calls), true, 2, 50, 7)
	if err != nil {
		t.Fatalf("RandomSearch: %v", err)
	}
	if res.Iterations > 12 {
		t.Fatalf("iterations = %d, space only has 12 configs", res.Iterations)
	}
}

func TestSearch_EmptySpaceErrors(t *testing.T) {
	var calls int64
	if _, err := GridSearch(context.Background(), Space{}, scoreByParams(&calls), true, 2); err == nil {
		t.Fatal("expected error for empty space")
	}
	if _, err := RandomSearch(context.Background(), smallSpace(), scoreByParams(&calls), true, 2, 0, 1); err == nil {
		t.Fatal("expected error for n=0")
	}
}

func TestBacktestObjective_ScoresRealRun(t *testing.T) {
	// Rising series then a crash: ALF_2_2 completes one losing round trip.
	closes := []float64{100, 101, 102, 103, 104, 105, 95, 90}
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Candle, len(closes))
	for i, c := range closes {
		pts := model.PriceToPoints(c)
		bars[i] = model.Candle{
			Symbol: "GBPJPY", TF: 3600,
			TS:   base.Add(time.Duration(i) * time.Hour),
			Open: pts, High: pts + 5000, Low: pts - 5000, Close: pts,
		}
	}

	obj := BacktestObjective(bars, 3600, 1, 0, perf.TotalReturn{})
	score, metrics, err := obj(laguerre.Config{Order: 2, Length: 2})
	if err != nil {
		t.Fatalf("objective: %v", err)
	}
	if score >= 0 {
		t.Fatalf("losing run scored %v, want negative total return", score)
	}
	if metrics["win_rate"] != 0 {
		t.Fatalf("metrics missing or wrong: %+v", metrics)
	}
	if _, ok := metrics["sharpe"]; !ok {
		t.Fatalf("full metric set expected: %+v", metrics)
	}
}
