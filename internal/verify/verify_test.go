package verify

import (
	"math"
	"testing"
)

func TestCompare_IdenticalSeries(t *testing.T) {
	nan := math.NaN()
	got := []float64{nan, nan, 100.5, 101.25, 100.75, 102.0}
	want := []float64{nan, nan, 100.5, 101.25, 100.75, 102.0}

	rep, err := Compare(got, want, 1e-5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !rep.Valid {
		t.Fatalf("identical series should be valid: %+v", rep)
	}
	if rep.Samples != 6 || rep.Skipped != 2 || rep.Compared != 4 || rep.Matches != 4 {
		t.Fatalf("counts wrong: %+v", rep)
	}
	if rep.MatchPct != 100 || rep.MaxDev != 0 {
		t.Fatalf("stats wrong: %+v", rep)
	}
	if rep.Correlation < 0.9999 {
		t.Fatalf("correlation = %v", rep.Correlation)
	}
}

func TestCompare_WithinTolerance(t *testing.T) {
	got := []float64{100.000001, 101.000002, 102.000001, 101.500003}
	want := []float64{100.0, 101.0, 102.0, 101.5}

	rep, err := Compare(got, want, 1e-5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !rep.Valid {
		t.Fatalf("sub-tolerance deviations should be valid: %+v", rep)
	}
	if rep.MaxDev == 0 || rep.MaxDev >= 1e-5 {
		t.Fatalf("MaxDev = %v", rep.MaxDev)
	}
}

func TestCompare_OneBadSampleBreaksValidity(t *testing.T) {
	// 4 samples, one off by a lot: 75% match can never clear 99.99%.
	got := []float64{100.0, 101.0, 200.0, 101.5}
	want := []float64{100.0, 101.0, 102.0, 101.5}

	rep, err := Compare(got, want, 1e-5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rep.Valid {
		t.Fatalf("divergent sample should invalidate: %+v", rep)
	}
	if rep.Matches != 3 || rep.MaxDev < 97 {
		t.Fatalf("stats wrong: %+v", rep)
	}
}

func TestCompare_OneSidedNaNIsAMiss(t *testing.T) {
	nan := math.NaN()
	// Reference warms up one bar later than we do.
	got := []float64{nan, 100.5, 101.0, 101.5}
	want := []float64{nan, nan, 101.0, 101.5}

	rep, err := Compare(got, want, 1e-5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rep.Skipped != 1 || rep.Compared != 3 || rep.Matches != 2 {
		t.Fatalf("NaN alignment wrong: %+v", rep)
	}
	if rep.Valid {
		t.Fatalf("warm-up disagreement should not be valid at this length: %+v", rep)
	}
}

func TestCompare_LengthMismatchErrors(t *testing.T) {
	if _, err := Compare([]float64{1, 2}, []float64{1, 2, 3}, 1e-5); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := Compare([]float64{1, 2}, []float64{1, 2}, 0); err == nil {
		t.Fatal("expected tolerance error")
	}
}

func TestCompare_UncorrelatedSeriesInvalid(t *testing.T) {
	// Same values, opposite order: high deviations AND negative correlation.
	got := []float64{1, 2, 3, 4, 5}
	want := []float64{5, 4, 3, 2, 1}

	rep, err := Compare(got, want, 1e-5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rep.Correlation > -0.99 {
		t.Fatalf("correlation = %v, want ~ -1", rep.Correlation)
	}
	if rep.Valid {
		t.Fatalf("anti-correlated series must not validate: %+v", rep)
	}
}

func TestCompare_ConstantSeries(t *testing.T) {
	got := []float64{100, 100, 100}
	want := []float64{100, 100, 100}

	rep, err := Compare(got, want, 1e-5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	// Zero variance: correlation defined as 1 because the series agree.
	if rep.Correlation != 1 || !rep.Valid {
		t.Fatalf("constant equal series should validate: %+v", rep)
	}

	rep, err = Compare([]float64{100, 100, 100}, []float64{200, 200, 200}, 1e-5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rep.Valid || rep.Correlation != 0 {
		t.Fatalf("constant differing series must not validate: %+v", rep)
	}
}
