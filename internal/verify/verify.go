// Package verify compares a computed filter series against a reference
// series exported by another implementation.
//
// The comparison is black-box and NaN-aware: rows where both series are
// NaN (warm-up) are skipped, a NaN on one side only counts as a mismatch,
// and the deviation and correlation statistics cover the rows where both
// sides are finite.
package verify

import (
	"fmt"
	"math"
)

// Acceptance thresholds for a series to be declared a valid match.
const (
	MinMatchPct    = 99.99
	MinCorrelation = 0.9999
)

// Report summarizes a series comparison.
type Report struct {
	Samples  int `json:"samples"`  // aligned rows
	Skipped  int `json:"skipped"`  // rows NaN on both sides (warm-up)
	Compared int `json:"compared"` // rows checked against tolerance
	Matches  int `json:"matches"`  // rows within tolerance

	MatchPct    float64 `json:"match_pct"`
	MaxDev      float64 `json:"max_dev"`
	MeanDev     float64 `json:"mean_dev"`
	Correlation float64 `json:"correlation"`
	Tolerance   float64 `json:"tolerance"`

	Valid bool `json:"valid"`
}

// Compare checks got against want within tol. The series must be the same
// length; they are aligned by index.
func Compare(got, want []float64, tol float64) (Report, error) {
	if len(got) != len(want) {
		return Report{}, fmt.Errorf("series length mismatch: got %d, want %d", len(got), len(want))
	}
	if tol <= 0 {
		return Report{}, fmt.Errorf("tolerance must be positive, got %g", tol)
	}

	rep := Report{Samples: len(got), Tolerance: tol}

	var devSum float64
	var finiteG, finiteW []float64
	for i := range got {
		gNaN, wNaN := math.IsNaN(got[i]), math.IsNaN(want[i])
		if gNaN && wNaN {
			rep.Skipped++
			continue
		}
		rep.Compared++
		if gNaN || wNaN {
			// One-sided NaN: warm-up lengths disagree. Counts as a miss.
			continue
		}
		dev := math.Abs(got[i] - want[i])
		devSum += dev
		if dev > rep.MaxDev {
			rep.MaxDev = dev
		}
		if dev <= tol {
			rep.Matches++
		}
		finiteG = append(finiteG, got[i])
		finiteW = append(finiteW, want[i])
	}

	if rep.Compared > 0 {
		rep.MatchPct = 100 * float64(rep.Matches) / float64(rep.Compared)
	}
	if n := len(finiteG); n > 0 {
		rep.MeanDev = devSum / float64(n)
	}
	rep.Correlation = pearson(finiteG, finiteW, rep.MaxDev <= tol)

	rep.Valid = rep.Compared > 0 &&
		rep.MatchPct > MinMatchPct &&
		rep.MaxDev < tol &&
		rep.Correlation > MinCorrelation
	return rep, nil
}

// pearson computes the correlation over paired finite samples. Degenerate
// (constant) series correlate 1 when they already agree within tolerance,
// 0 otherwise.
func pearson(xs, ys []float64, agrees bool) float64 {
	n := float64(len(xs))
	if n < 2 {
		if agrees && len(xs) > 0 {
			return 1
		}
		return 0
	}

	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= n
	meanY /= n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		if agrees {
			return 1
		}
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
