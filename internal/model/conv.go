package model

import "math"

// PointScale is the fixed-point scale for prices: 1 price unit = 100000
// points. Five fractional digits cover standard FX quoting (1.23456)
// with headroom for index/metal prices within int64.
const PointScale = 100000

// PriceToPoints converts a float price to int64 points, rounding half
// away from zero. NaN and infinities map to 0 — callers on the float
// path are expected to validate first.
func PriceToPoints(price float64) int64 {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0
	}
	if price >= 0 {
		return int64(price*PointScale + 0.5)
	}
	return int64(price*PointScale - 0.5)
}

// PointsToPrice converts int64 points back to a float price.
func PointsToPrice(points int64) float64 {
	return float64(points) / PointScale
}

// Itoa is a minimal int-to-string converter for hot-path usage.
// Avoids importing strconv to eliminate unnecessary overhead.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
