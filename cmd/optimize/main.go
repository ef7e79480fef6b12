// cmd/optimize searches the filter parameter space for the configuration
// that scores best on a chosen performance metric, backtesting every
// candidate over the same historical bars.
//
// Usage:
//
//	go run ./cmd/optimize --csv=data/GBPJPY_H1.csv --symbol=GBPJPY --tf=3600
//	go run ./cmd/optimize --csv=data/GBPJPY_H1.csv --method=random --samples=50 --metric=sharpe
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/optimize"
	"laguerre-systemv1/internal/perf"
	"laguerre-systemv1/internal/pricefile"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	csvPath := flag.String("csv", "", "OHLCV CSV file with historical bars")
	symbol := flag.String("symbol", "GBPJPY", "Symbol the bars belong to")
	tf := flag.Int("tf", 3600, "Bar duration in seconds")
	method := flag.String("method", "grid", "Search method: grid or random")
	samples := flag.Int("samples", 50, "Candidates to draw (random search only)")
	seed := flag.Int64("seed", 1, "RNG seed (random search only)")
	workers := flag.Int("workers", runtime.NumCPU(), "Parallel evaluation workers")
	metricName := flag.String("metric", "total_return", "Objective metric (see internal/perf)")
	qty := flag.Int64("qty", 1, "Units per trade")
	slippageBps := flag.Int64("slippage-bps", 0, "Slippage per fill in basis points")
	orders := flag.String("orders", "", "Override candidate orders, e.g. \"2,4,8\"")
	lengths := flag.String("lengths", "", "Override candidate lengths, e.g. \"5,10,20\"")
	periods := flag.String("periods", "", "Override candidate smooth periods, e.g. \"3,5,8\"")
	jsonOut := flag.String("json", "", "Write the full search result JSON to this file")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("[optimize] --csv is required")
	}

	metric, ok := perf.ByName(*metricName)
	if !ok {
		var known []string
		for _, m := range perf.All() {
			known = append(known, m.Name())
		}
		log.Fatalf("[optimize] unknown metric %q (known: %s)", *metricName, strings.Join(known, ", "))
	}

	bars, err := pricefile.ReadBars(*csvPath, *symbol, *tf, pricefile.LoadOptions{AllowGaps: true})
	if err != nil {
		log.Fatalf("[optimize] bar load failed: %v", err)
	}
	if len(bars) == 0 {
		log.Fatal("[optimize] no bars loaded")
	}
	log.Printf("[optimize] %d bars loaded: %s %ds, %s – %s",
		len(bars), *symbol, *tf,
		bars[0].TS.Format("2006-01-02"), bars[len(bars)-1].TS.Format("2006-01-02"))

	space := optimize.DefaultSpace()
	if v := parseInts(*orders); len(v) > 0 {
		space.Orders = v
	}
	if v := parseInts(*lengths); len(v) > 0 {
		space.Lengths = v
	}
	if v := parseInts(*periods); len(v) > 0 {
		space.SmoothPeriods = v
	}

	obj := optimize.BacktestObjective(bars, *tf, *qty, *slippageBps, metric)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[optimize] interrupted, finishing current evaluations...")
		cancel()
	}()

	start := time.Now()
	var result optimize.Result
	switch *method {
	case "grid":
		result, err = optimize.GridSearch(ctx, space, obj, metric.HigherIsBetter(), *workers)
	case "random":
		result, err = optimize.RandomSearch(ctx, space, obj, metric.HigherIsBetter(), *workers, *samples, *seed)
	default:
		log.Fatalf("[optimize] unknown method %q (grid or random)", *method)
	}
	if err != nil {
		log.Fatalf("[optimize] search failed: %v", err)
	}

	printResult(result, metric, time.Since(start))

	if *jsonOut != "" {
		data, err := json.MarshalIndent(&result, "", "  ")
		if err != nil {
			log.Fatalf("[optimize] result marshal failed: %v", err)
		}
		if err := os.WriteFile(*jsonOut, data, 0o644); err != nil {
			log.Fatalf("[optimize] result write failed: %v", err)
		}
		log.Printf("[optimize] result written to %s", *jsonOut)
	}
}

func printResult(res optimize.Result, metric perf.Metric, elapsed time.Duration) {
	fmt.Println()
	fmt.Printf("— %s search: %d candidates in %s —\n", res.Method, res.Iterations, elapsed.Round(time.Millisecond))
	fmt.Printf("best %s: %.4f\n", metric.Name(), res.Score)
	fmt.Printf("best config: %s (%s)\n", res.Params.Name(), describeConfig(res.Params))
	fmt.Println("metrics:")
	for name, v := range res.Metrics {
		fmt.Printf("  %-15s %.4f\n", name, v)
	}
}

func describeConfig(cfg laguerre.Config) string {
	if !cfg.Adaptive {
		return fmt.Sprintf("order=%d length=%d gamma=%.4f fixed", cfg.Order, cfg.Length, cfg.FixedGamma())
	}
	return fmt.Sprintf("order=%d length=%d adaptive %s/%d", cfg.Order, cfg.Length, cfg.SmoothMode, cfg.SmoothPeriod)
}

func parseInts(s string) []int {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}
