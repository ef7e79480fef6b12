// Package optimize searches the filter parameter space for the
// best-scoring backtest configuration.
//
// Both searches score candidates through a caller-supplied Objective and
// run candidates across a worker pool. Filter instances are never shared:
// each objective call builds its own engine, so a worker owns all the
// state it touches.
package optimize

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"laguerre-systemv1/internal/backtest"
	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/perf"
	"laguerre-systemv1/internal/strategy"
)

// Space is the set of candidate parameter values to search.
type Space struct {
	Orders   []int
	Lengths  []int
	Adaptive []bool

	// Smoothing dimensions, used only for adaptive candidates.
	SmoothPeriods []int
	SmoothModes   []laguerre.SmoothMode
}

// DefaultSpace covers the ranges the filter is normally run with.
func DefaultSpace() Space {
	return Space{
		Orders:        []int{2, 3, 4, 6, 8},
		Lengths:       []int{5, 10, 15, 20, 30},
		Adaptive:      []bool{false, true},
		SmoothPeriods: []int{3, 5, 8},
		SmoothModes:   []laguerre.SmoothMode{laguerre.SmoothSMA, laguerre.SmoothEMA, laguerre.SmoothMedian},
	}
}

// Candidates expands the space into the cartesian product of valid filter
// configs. Fixed-mode candidates collapse the smoothing dimensions.
func (s Space) Candidates() []laguerre.Config {
	var out []laguerre.Config
	for _, order := range s.Orders {
		for _, length := range s.Lengths {
			for _, adaptive := range s.Adaptive {
				if !adaptive {
					cfg := laguerre.Config{Order: order, Length: length}
					if cfg.Validate() == nil {
						out = append(out, cfg)
					}
					continue
				}
				for _, period := range s.SmoothPeriods {
					for _, mode := range s.SmoothModes {
						cfg := laguerre.Config{
							Order:        order,
							Length:       length,
							Adaptive:     true,
							SmoothPeriod: period,
							SmoothMode:   mode,
						}
						if cfg.Validate() == nil {
							out = append(out, cfg)
						}
					}
				}
			}
		}
	}
	return out
}

// Objective scores one candidate. Implementations must build all filter
// state fresh per call: the searches invoke it from multiple goroutines.
type Objective func(cfg laguerre.Config) (score float64, metrics map[string]float64, err error)

// BacktestObjective builds an Objective that backtests each candidate over
// the given bars with a Laguerre trend strategy and scores it with metric.
func BacktestObjective(bars []model.Candle, tf int, qty, slippageBps int64, metric perf.Metric) Objective {
	return func(cfg laguerre.Config) (float64, map[string]float64, error) {
		eng, err := backtest.New(backtest.Config{
			TF:      tf,
			Filters: []laguerre.Config{cfg},
			Strategy: strategy.NewLaguerreTrend(strategy.LaguerreTrendConfig{
				FilterName: cfg.Name(),
				TF:         tf,
				Qty:        qty,
			}),
			SlippageBps: slippageBps,
		})
		if err != nil {
			return 0, nil, err
		}
		res, err := eng.Run(bars)
		if err != nil {
			return 0, nil, err
		}
		metrics := res.Metrics()
		return metrics[metric.Name()], metrics, nil
	}
}

// HistoryPoint is one evaluated candidate.
type HistoryPoint struct {
	Iteration int             `json:"iteration"`
	Params    laguerre.Config `json:"params"`
	Score     float64         `json:"score"`
}

// Result is the outcome of a search.
type Result struct {
	Params     laguerre.Config    `json:"params"`
	Score      float64            `json:"score"`
	Metrics    map[string]float64 `json:"metrics"`
	Method     string             `json:"method"`
	Iterations int                `json:"iterations"` // candidates evaluated
	History    []HistoryPoint     `json:"history"`
}

// GridSearch evaluates every candidate in the space.
func GridSearch(ctx context.Context, space Space, obj Objective, higherIsBetter bool, workers int) (Result, error) {
	return runSearch(ctx, "grid", space.Candidates(), obj, higherIsBetter, workers)
}

// RandomSearch samples up to n distinct candidates from the space using a
// seeded RNG, so a run is reproducible from its seed.
func RandomSearch(ctx context.Context, space Space, obj Objective, higherIsBetter bool, workers, n int, seed int64) (Result, error) {
	if n <= 0 {
		return Result{}, fmt.Errorf("random search needs n > 0, got %d", n)
	}
	rng := rand.New(rand.NewSource(seed))

	seen := make(map[string]bool)
	var cands []laguerre.Config
	// The space may hold fewer than n distinct configs; bail out after
	// enough dry draws instead of spinning.
	for attempts := 0; len(cands) < n && attempts < n*50; attempts++ {
		cfg := laguerre.Config{
			Order:  pickInt(rng, space.Orders),
			Length: pickInt(rng, space.Lengths),
		}
		if pickBool(rng, space.Adaptive) {
			cfg.Adaptive = true
			cfg.SmoothPeriod = pickInt(rng, space.SmoothPeriods)
			cfg.SmoothMode = pickMode(rng, space.SmoothModes)
		}
		if cfg.Validate() != nil {
			continue
		}
		key := cfg.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, cfg)
	}
	return runSearch(ctx, "random", cands, obj, higherIsBetter, workers)
}

type scoredCandidate struct {
	evaluated bool
	score     float64
	metrics   map[string]float64
	err       error
}

func runSearch(ctx context.Context, method string, candidates []laguerre.Config, obj Objective, higherIsBetter bool, workers int) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("%s search: empty candidate set", method)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	out := make([]scoredCandidate, len(candidates))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				score, metrics, err := obj(candidates[idx])
				out[idx] = scoredCandidate{evaluated: true, score: score, metrics: metrics, err: err}
			}
		}()
	}

feed:
	for idx := range candidates {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	res := Result{Method: method}
	bestIdx := -1
	for idx, sc := range out {
		if !sc.evaluated {
			continue
		}
		res.Iterations++
		if sc.err != nil {
			log.Printf("[optimize] candidate %s failed: %v", candidates[idx].Name(), sc.err)
			continue
		}
		if math.IsNaN(sc.score) {
			continue
		}
		res.History = append(res.History, HistoryPoint{
			Iteration: res.Iterations,
			Params:    candidates[idx],
			Score:     sc.score,
		})
		if bestIdx == -1 ||
			(higherIsBetter && sc.score > out[bestIdx].score) ||
			(!higherIsBetter && sc.score < out[bestIdx].score) {
			bestIdx = idx
		}
	}
	if bestIdx == -1 {
		return Result{}, fmt.Errorf("%s search: no candidate produced a score", method)
	}

	res.Params = candidates[bestIdx]
	res.Score = out[bestIdx].score
	res.Metrics = out[bestIdx].metrics
	log.Printf("[optimize] ✅ %s search done: %d/%d candidates, best %s score=%.4f",
		method, res.Iterations, len(candidates), res.Params.Name(), res.Score)
	return res, nil
}

func pickInt(rng *rand.Rand, vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	return vals[rng.Intn(len(vals))]
}

func pickBool(rng *rand.Rand, vals []bool) bool {
	if len(vals) == 0 {
		return false
	}
	return vals[rng.Intn(len(vals))]
}

func pickMode(rng *rand.Rand, vals []laguerre.SmoothMode) laguerre.SmoothMode {
	if len(vals) == 0 {
		return laguerre.SmoothSMA
	}
	return vals[rng.Intn(len(vals))]
}
