// Package perf computes backtest performance metrics.
//
// Each metric implements the Metric interface so the optimizer can score
// candidates with any of them; HigherIsBetter tells the search which
// direction wins. All metrics work on price-unit floats, converted from
// points by the backtester.
package perf

import (
	"math"
	"strings"
)

// Run is the raw material for metric computation: the per-bar equity
// curve and the realized P&L of each closed trade, in price units.
type Run struct {
	InitialEquity float64
	Equity        []float64
	TradePnL      []float64
}

// Metric scores a backtest run with a single number.
type Metric interface {
	Name() string
	Description() string
	HigherIsBetter() bool
	Compute(run Run) float64
}

// SharpeEmpty is the sentinel returned when the Sharpe ratio is undefined
// (no returns, or zero variance).
const SharpeEmpty = -999.0

// annualization factor for per-bar Sharpe, assuming daily bars.
var sqrtTradingDays = math.Sqrt(252)

// All returns every available metric.
func All() []Metric {
	return []Metric{
		TotalReturn{},
		WinRate{},
		Sharpe{},
		MaxDrawdown{},
		ProfitFactor{},
	}
}

// ByName finds a metric by its flag name (case-insensitive).
func ByName(name string) (Metric, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range All() {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// TotalReturn is the percentage change of equity over the run.
type TotalReturn struct{}

func (TotalReturn) Name() string         { return "total_return" }
func (TotalReturn) Description() string  { return "equity change over the run, percent" }
func (TotalReturn) HigherIsBetter() bool { return true }

func (TotalReturn) Compute(run Run) float64 {
	initial := run.InitialEquity
	if initial == 0 && len(run.Equity) > 0 {
		initial = run.Equity[0]
	}
	if initial == 0 || len(run.Equity) == 0 {
		return 0
	}
	final := run.Equity[len(run.Equity)-1]
	return (final - initial) / initial * 100
}

// WinRate is the share of closed trades with positive P&L.
type WinRate struct{}

func (WinRate) Name() string         { return "win_rate" }
func (WinRate) Description() string  { return "share of profitable trades, percent" }
func (WinRate) HigherIsBetter() bool { return true }

func (WinRate) Compute(run Run) float64 {
	if len(run.TradePnL) == 0 {
		return 0
	}
	wins := 0
	for _, pnl := range run.TradePnL {
		if pnl > 0 {
			wins++
		}
	}
	return 100 * float64(wins) / float64(len(run.TradePnL))
}

// Sharpe is the annualized ratio of mean to standard deviation of per-bar
// equity returns.
type Sharpe struct{}

func (Sharpe) Name() string         { return "sharpe" }
func (Sharpe) Description() string  { return "annualized return/volatility of the equity curve" }
func (Sharpe) HigherIsBetter() bool { return true }

func (Sharpe) Compute(run Run) float64 {
	var returns []float64
	for i := 1; i < len(run.Equity); i++ {
		prev := run.Equity[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, (run.Equity[i]-prev)/prev)
	}
	if len(returns) < 2 {
		return SharpeEmpty
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	if variance == 0 {
		return SharpeEmpty
	}
	return mean / math.Sqrt(variance) * sqrtTradingDays
}

// MaxDrawdown is the worst peak-to-trough equity decline, in percent.
// Lower is better.
type MaxDrawdown struct{}

func (MaxDrawdown) Name() string         { return "max_drawdown" }
func (MaxDrawdown) Description() string  { return "worst peak-to-trough equity decline, percent" }
func (MaxDrawdown) HigherIsBetter() bool { return false }

func (MaxDrawdown) Compute(run Run) float64 {
	var peak, maxDD float64
	for _, eq := range run.Equity {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if dd := (peak - eq) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// ProfitFactor is gross profit divided by gross loss. A run with profits
// and no losses returns 999 as an "infinite" stand-in.
type ProfitFactor struct{}

func (ProfitFactor) Name() string         { return "profit_factor" }
func (ProfitFactor) Description() string  { return "gross profit / gross loss" }
func (ProfitFactor) HigherIsBetter() bool { return true }

func (ProfitFactor) Compute(run Run) float64 {
	var grossProfit, grossLoss float64
	for _, pnl := range run.TradePnL {
		if pnl > 0 {
			grossProfit += pnl
		} else {
			grossLoss -= pnl
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return 999
		}
		return 0
	}
	return grossProfit / grossLoss
}
