package laguerre

// trimaUniform is the canonical stage aggregation: the arithmetic mean
// of the full chain.
func trimaUniform(stages []float64) float64 {
	sum := 0.0
	for _, v := range stages {
		sum += v
	}
	return sum / float64(len(stages))
}

// trimaWindowed reproduces the nested sub-window aggregation from the
// MQL lineage: means of len2 trailing sub-slices of width len1,
// averaged. Short chains truncate sub-slices at the left edge; empty
// sub-slices contribute nothing but still count in the divisor.
func trimaWindowed(stages []float64) float64 {
	n := len(stages)
	len1 := (n + 1) / 2
	len2 := (n + 2) / 2

	sum := 0.0
	for i := 0; i < len2 && i < n; i++ {
		start := n - len1 - i
		if start < 0 {
			start = 0
		}
		end := n - i
		if end <= start {
			continue
		}
		sub := 0.0
		for _, v := range stages[start:end] {
			sub += v
		}
		sum += sub / float64(end-start)
	}
	return sum / float64(len2)
}
