// Package portfolio tracks positions, P&L, and portfolio-level risk.
//
// It maintains a view of all open positions, calculates unrealized
// P&L from the latest bar closes, and enforces configurable risk limits.
package portfolio

import (
	"sync"

	"laguerre-systemv1/internal/model"
)

// Portfolio tracks all open positions, keyed by symbol.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[string]*model.Position),
	}
}

// Apply adjusts the position for a fill. Positive qty buys, negative qty
// sells. A fill that brings the position to zero removes it; a fill that
// flips through zero re-opens the remainder at the fill price.
func (pf *Portfolio) Apply(symbol string, qty, price int64) {
	if qty == 0 {
		return
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok {
		pf.positions[symbol] = &model.Position{
			Symbol:    symbol,
			Qty:       qty,
			AvgPrice:  price,
			LastPrice: price,
		}
		return
	}

	newQty := pos.Qty + qty
	switch {
	case (pos.Qty > 0) == (qty > 0):
		// Extending in the same direction: weighted average entry price.
		absOld, absAdd := abs64(pos.Qty), abs64(qty)
		pos.AvgPrice = (pos.AvgPrice*absOld + price*absAdd) / (absOld + absAdd)
		pos.Qty = newQty
	case newQty == 0:
		delete(pf.positions, symbol)
		return
	case (pos.Qty > 0) == (newQty > 0):
		// Partial reduction keeps the original basis.
		pos.Qty = newQty
	default:
		// Flipped through zero: remainder opens at the fill price.
		pos.Qty = newQty
		pos.AvgPrice = price
	}
	pos.LastPrice = price
}

// UpdatePrice updates the last seen price for a symbol's position.
func (pf *Portfolio) UpdatePrice(bar model.Candle) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[bar.Symbol]; ok {
		pos.LastPrice = bar.Close
	}
}

// Get returns the position for a symbol, if one is open.
func (pf *Portfolio) Get(symbol string) (model.Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	pos, ok := pf.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// GetPositions returns a snapshot of all positions.
func (pf *Portfolio) GetPositions() []model.Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]model.Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, *p)
	}
	return result
}

// TotalUnrealizedPnL returns the total unrealized P&L across all positions,
// in points.
func (pf *Portfolio) TotalUnrealizedPnL() int64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total int64
	for _, p := range pf.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
