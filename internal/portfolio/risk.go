package portfolio

import (
	"log"
	"sync"

	"laguerre-systemv1/internal/model"
)

// RiskLimits defines configurable risk management thresholds.
type RiskLimits struct {
	MaxPositionSize  int64   `json:"max_position_size"`  // max qty per symbol
	MaxDailyLoss     int64   `json:"max_daily_loss"`     // max daily loss in points
	MaxOpenPositions int     `json:"max_open_positions"` // max concurrent positions
	MaxExposure      int64   `json:"max_exposure"`       // max total price*qty, 0 disables
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`   // max drawdown percentage (0-100)
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  10,
		MaxDailyLoss:     1000000, // 10.0 in price units
		MaxOpenPositions: 5,
		MaxExposure:      500000000,
		MaxDrawdownPct:   10.0,
	}
}

// RiskManager gates orders against RiskLimits and tracks running equity.
type RiskManager struct {
	mu        sync.RWMutex
	limits    RiskLimits
	portfolio *Portfolio

	dailyPnL   int64
	equity     int64
	peakEquity int64
}

// NewRiskManager creates a RiskManager with the given limits, portfolio, and
// starting equity (in points).
func NewRiskManager(limits RiskLimits, pf *Portfolio, initialEquity int64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		portfolio:  pf,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanTrade reports whether a new trade stays inside every limit; when it does
// not, the string names the limit that blocked it.
func (rm *RiskManager) CanTrade(symbol string, qty, price int64) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	positions := rm.portfolio.GetPositions()

	if reason := rm.checkPositions(symbol, qty, price, positions); reason != "" {
		return false, reason
	}
	if rm.dailyPnL < -rm.limits.MaxDailyLoss {
		return false, "max daily loss reached"
	}
	if dd := rm.drawdownPct(); dd > rm.limits.MaxDrawdownPct {
		return false, "max drawdown exceeded"
	}
	return true, ""
}

// checkPositions covers the per-position limits: count, size, and exposure.
func (rm *RiskManager) checkPositions(symbol string, qty, price int64, positions []model.Position) string {
	openInSymbol := false
	exposure := abs64(qty) * price
	for _, pos := range positions {
		if pos.Symbol == symbol {
			openInSymbol = true
		}
		exposure += abs64(pos.Qty) * pos.AvgPrice
	}

	if !openInSymbol && len(positions) >= rm.limits.MaxOpenPositions {
		return "max open positions reached"
	}
	if qty > rm.limits.MaxPositionSize || qty < -rm.limits.MaxPositionSize {
		return "position size exceeds limit"
	}
	if rm.limits.MaxExposure > 0 && exposure > rm.limits.MaxExposure {
		return "max exposure exceeded"
	}
	return ""
}

// drawdownPct is the percentage fall from peak equity. Callers hold rm.mu.
func (rm *RiskManager) drawdownPct() float64 {
	if rm.peakEquity <= 0 {
		return 0
	}
	return float64(rm.peakEquity-rm.equity) / float64(rm.peakEquity) * 100
}

// RecordPnL updates daily P&L and equity tracking.
func (rm *RiskManager) RecordPnL(pnl int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.dailyPnL += pnl
	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}

	log.Printf("[risk] daily P&L: %d, equity: %d, peak: %d", rm.dailyPnL, rm.equity, rm.peakEquity)
}

// ResetDaily resets the daily P&L counter (call at session open).
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyPnL = 0
}

// GetStatus returns current risk status for the API surface.
func (rm *RiskManager) GetStatus() map[string]interface{} {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return map[string]interface{}{
		"daily_pnl":    rm.dailyPnL,
		"equity":       rm.equity,
		"peak_equity":  rm.peakEquity,
		"drawdown_pct": rm.drawdownPct(),
		"limits":       rm.limits,
	}
}
