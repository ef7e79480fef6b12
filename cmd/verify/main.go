// cmd/verify runs a filter over recorded bars and compares the output
// series against a reference export, reporting deviation statistics and
// a pass/fail verdict.
//
// The reference file is a ts,value CSV; warm-up rows may be empty or NaN.
// Rows are aligned to the bar series by index, so both files must cover
// the same range.
//
// Usage:
//
//	go run ./cmd/verify --csv=data/GBPJPY_H1.csv --ref=data/alf_4_10_ref.csv --filter=4:10
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"laguerre-systemv1/internal/alfengine"
	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/pricefile"
	"laguerre-systemv1/internal/verify"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	csvPath := flag.String("csv", "", "OHLCV CSV file with the bar series")
	refPath := flag.String("ref", "", "Reference ts,value CSV to compare against")
	symbol := flag.String("symbol", "GBPJPY", "Symbol the bars belong to")
	tf := flag.Int("tf", 3600, "Bar duration in seconds")
	filterSpec := flag.String("filter", "4:10", "Filter spec: ORDER:LENGTH[:MODE:PERIOD]")
	tol := flag.Float64("tol", 1e-6, "Per-row absolute tolerance")
	jsonOut := flag.Bool("json", false, "Print the report as JSON instead of text")
	flag.Parse()

	if *csvPath == "" || *refPath == "" {
		log.Fatal("[verify] --csv and --ref are required")
	}

	specs := alfengine.ParseFilterSpecs(*filterSpec)
	if len(specs) == 0 {
		log.Fatalf("[verify] invalid filter spec %q", *filterSpec)
	}
	cfg := specs[0]

	bars, err := pricefile.ReadBars(*csvPath, *symbol, *tf, pricefile.LoadOptions{AllowGaps: true})
	if err != nil {
		log.Fatalf("[verify] bar load failed: %v", err)
	}

	refPoints, err := pricefile.ReadReference(*refPath)
	if err != nil {
		log.Fatalf("[verify] reference load failed: %v", err)
	}

	if len(bars) != len(refPoints) {
		log.Fatalf("[verify] series length mismatch: %d bars vs %d reference rows", len(bars), len(refPoints))
	}

	got := computeSeries(cfg, pricefile.Closes(bars))
	want := pricefile.Values(refPoints)

	report, err := verify.Compare(got, want, *tol)
	if err != nil {
		log.Fatalf("[verify] compare failed: %v", err)
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(&report, "", "  ")
		fmt.Println(string(data))
	} else {
		printReport(cfg, report)
	}

	if !report.Valid {
		os.Exit(1)
	}
}

// computeSeries runs the filter over the close prices and returns its
// value per bar, NaN while warming up. NaN rows pair with the reference's
// empty warm-up rows during comparison.
func computeSeries(cfg laguerre.Config, closes []float64) []float64 {
	f, err := laguerre.New(cfg)
	if err != nil {
		log.Fatalf("[verify] filter init failed: %v", err)
	}

	out := make([]float64, len(closes))
	for i, c := range closes {
		f.Step(c)
		if f.Ready() {
			out[i] = f.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

func printReport(cfg laguerre.Config, r verify.Report) {
	verdict := "FAIL"
	if r.Valid {
		verdict = "PASS"
	}
	fmt.Println()
	fmt.Printf("— verification report: %s —\n", cfg.Name())
	fmt.Printf("  samples:      %d (%d warm-up skipped, %d compared)\n", r.Samples, r.Skipped, r.Compared)
	fmt.Printf("  matches:      %d (%.2f%%) at tol=%g\n", r.Matches, r.MatchPct, r.Tolerance)
	fmt.Printf("  max dev:      %g\n", r.MaxDev)
	fmt.Printf("  mean dev:     %g\n", r.MeanDev)
	fmt.Printf("  correlation:  %.6f\n", r.Correlation)
	fmt.Printf("  verdict:      %s\n", verdict)
}
