package laguerre

import (
	"fmt"

	"laguerre-systemv1/internal/model"
)

// SmoothMode selects the smoothing strategy applied to the raw adaptive
// gamma (efficiency ratio) series. The set is closed — five strategies,
// dispatched through a single switch.
type SmoothMode int

const (
	SmoothSMA SmoothMode = iota
	SmoothEMA
	SmoothWilder
	SmoothLWMA
	SmoothMedian
)

// String returns the config spelling of the smooth mode.
func (m SmoothMode) String() string {
	switch m {
	case SmoothSMA:
		return "SMA"
	case SmoothEMA:
		return "EMA"
	case SmoothWilder:
		return "WILDER"
	case SmoothLWMA:
		return "LWMA"
	case SmoothMedian:
		return "MEDIAN"
	}
	return "UNKNOWN"
}

// ParseSmoothMode parses the config spelling. Unknown values return
// SmoothSMA and false.
func ParseSmoothMode(s string) (SmoothMode, bool) {
	switch s {
	case "SMA", "":
		return SmoothSMA, true
	case "EMA":
		return SmoothEMA, true
	case "WILDER":
		return SmoothWilder, true
	case "LWMA":
		return SmoothLWMA, true
	case "MEDIAN":
		return SmoothMedian, true
	}
	return SmoothSMA, false
}

// TrimaMode selects how the stage values are aggregated into the
// filtered output.
type TrimaMode int

const (
	// TrimaUniform is the canonical aggregation: the arithmetic mean of
	// the stage values.
	TrimaUniform TrimaMode = iota

	// TrimaWindowed is the nested sub-window scheme found in the MQL
	// lineage of this filter. Kept as a documented alternative; its
	// mathematical target is unclear and it is not the default.
	TrimaWindowed
)

// String returns the config spelling of the TriMA mode.
func (m TrimaMode) String() string {
	if m == TrimaWindowed {
		return "WINDOWED"
	}
	return "UNIFORM"
}

// ParseTrimaMode parses the config spelling. Unknown values return
// TrimaUniform and false.
func ParseTrimaMode(s string) (TrimaMode, bool) {
	switch s {
	case "UNIFORM", "":
		return TrimaUniform, true
	case "WINDOWED":
		return TrimaWindowed, true
	}
	return TrimaUniform, false
}

// Config holds the immutable construction parameters of one filter.
type Config struct {
	// Order is the number of recursive stages (>= 1).
	Order int `json:"order"`

	// Length is the look-back window: it derives the fixed gamma and
	// sizes the adaptive efficiency-ratio deviation window.
	Length int `json:"length"`

	// Adaptive selects adaptive-gamma mode; when false the filter runs
	// with the fixed gamma 10/(Length+9).
	Adaptive bool `json:"adaptive"`

	// SmoothPeriod is the window/period of the adaptive smoothing
	// strategy. Ignored when Adaptive is false.
	SmoothPeriod int `json:"smooth_period"`

	// SmoothMode selects the adaptive smoothing strategy.
	SmoothMode SmoothMode `json:"smooth_mode"`

	// Trima selects the stage aggregation scheme.
	Trima TrimaMode `json:"trima"`

	// Applied selects which bar price feeds the filter.
	Applied model.AppliedPrice `json:"applied"`
}

// Validate checks the config, failing fast on anything that would make
// the filter ill-defined. Invalid configs are never silently coerced.
func (c Config) Validate() error {
	if c.Order < 1 {
		return fmt.Errorf("invalid order=%d: must be >= 1", c.Order)
	}
	if c.Length < 1 {
		return fmt.Errorf("invalid length=%d: must be >= 1", c.Length)
	}
	if c.SmoothMode < SmoothSMA || c.SmoothMode > SmoothMedian {
		return fmt.Errorf("unknown smooth mode %d", int(c.SmoothMode))
	}
	if c.Adaptive && c.SmoothPeriod < 1 {
		return fmt.Errorf("invalid smooth period=%d: must be >= 1 in adaptive mode", c.SmoothPeriod)
	}
	if c.Trima != TrimaUniform && c.Trima != TrimaWindowed {
		return fmt.Errorf("unknown trima mode %d", int(c.Trima))
	}
	if c.Applied < model.PriceClose || c.Applied > model.PriceTypical {
		return fmt.Errorf("unknown applied price %d", int(c.Applied))
	}
	return nil
}

// FixedGamma returns the fixed-mode smoothing coefficient, a pure
// function of Length: 10/(Length+9).
func (c Config) FixedGamma() float64 {
	return 10.0 / float64(c.Length+9)
}

// Name returns the result name for this config: "ALF_4_10" for a fixed
// filter, "ALF_4_10_MEDIAN_5" for an adaptive one. Adaptive parameters
// are part of the name so fixed and adaptive variants of the same
// order/length never share a result stream.
func (c Config) Name() string {
	n := "ALF_" + model.Itoa(c.Order) + "_" + model.Itoa(c.Length)
	if c.Adaptive {
		n += "_" + c.SmoothMode.String() + "_" + model.Itoa(c.SmoothPeriod)
	}
	return n
}

// steadyStart returns the last sample index that is NOT steady state:
// the filter is STEADY once SampleIndex exceeds this.
func (c Config) steadyStart() int {
	warm := 2 * c.Length
	if c.Order > warm {
		return c.Order
	}
	return warm
}

// warmupBars returns how many trailing bars a backfill should feed so
// that a cold filter reaches steady state with a primed smoothing
// window.
func (c Config) warmupBars() int {
	return c.steadyStart() + c.SmoothPeriod + 1
}

// Key returns the identity string used to match filter state across
// snapshots and config reloads. Two configs with equal keys produce
// identical filters.
func (c Config) Key() string {
	k := c.Name() + ":" + c.Trima.String() + ":" + c.Applied.String()
	if !c.Adaptive {
		return k + ":fixed"
	}
	return k + ":adaptive"
}
