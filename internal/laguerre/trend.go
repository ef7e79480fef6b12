package laguerre

import (
	"math"

	"laguerre-systemv1/internal/model"
)

// classifyTrend derives the trend label from two consecutive filter
// outputs. Strictly higher is UP, strictly lower is DOWN; an equal
// output, a missing previous output, or an undefined comparison carries
// the prior label forward unchanged.
func classifyTrend(current, previous float64, hasPrevious bool, prior model.Trend) model.Trend {
	if !hasPrevious || math.IsNaN(current) || math.IsNaN(previous) {
		return prior
	}
	switch {
	case current > previous:
		return model.TrendUp
	case current < previous:
		return model.TrendDown
	}
	return prior
}
