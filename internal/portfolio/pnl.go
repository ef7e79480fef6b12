package portfolio

import (
	"sync"
	"time"
)

// Trade represents a completed fill for P&L calculation.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"` // BUY or SELL
	Qty       int64     `json:"qty"`
	Price     int64     `json:"price"` // in points
	Timestamp time.Time `json:"timestamp"`
}

// PnLTracker tracks realized and unrealized P&L.
type PnLTracker struct {
	mu     sync.RWMutex
	trades []Trade

	// Realized P&L from closed positions (in points)
	realizedPnL int64

	// Per-symbol cost basis for P&L calculation. Qty is signed:
	// positive = long, negative = short.
	costBasis map[string]costEntry
}

type costEntry struct {
	Qty      int64
	AvgPrice int64 // in points
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		trades:    make([]Trade, 0, 500),
		costBasis: make(map[string]costEntry),
	}
}

// RecordTrade records a trade, updates the cost basis, and returns the
// realized P&L of any position it closed (in points).
func (p *PnLTracker) RecordTrade(trade Trade) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trades = append(p.trades, trade)

	// Direction: +1 for BUY, -1 for SELL. A trade in the direction of
	// the current position extends it; against it, it closes first.
	dir := int64(1)
	if trade.Action != "BUY" {
		dir = -1
	}

	entry := p.costBasis[trade.Symbol]

	var realizedPnL int64
	if entry.Qty*dir >= 0 {
		// Open or extend: weighted average price over the absolute size.
		entry = extend(entry, dir*trade.Qty, trade.Price)
	} else {
		closeQty := trade.Qty
		if held := abs64(entry.Qty); closeQty > held {
			closeQty = held
		}
		realizedPnL = dir * (entry.AvgPrice - trade.Price) * closeQty
		p.realizedPnL += realizedPnL

		entry.Qty += dir * closeQty
		if leftover := trade.Qty - closeQty; leftover > 0 {
			// Flipped through flat — the remainder opens the other way.
			entry = costEntry{Qty: dir * leftover, AvgPrice: trade.Price}
		} else if entry.Qty == 0 {
			entry = costEntry{}
		}
	}

	p.costBasis[trade.Symbol] = entry
	return realizedPnL
}

// extend grows a position by signed qty at the given price, keeping the
// average price weighted over the absolute size.
func extend(entry costEntry, qty, price int64) costEntry {
	if entry.Qty == 0 {
		return costEntry{Qty: qty, AvgPrice: price}
	}
	absOld, absAdd := abs64(entry.Qty), abs64(qty)
	entry.AvgPrice = (entry.AvgPrice*absOld + price*absAdd) / (absOld + absAdd)
	entry.Qty += qty
	return entry
}

// GetRealizedPnL returns total realized P&L in points.
func (p *PnLTracker) GetRealizedPnL() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// GetUnrealizedPnL calculates unrealized P&L from current prices.
// currentPrices maps symbol -> latest price in points.
func (p *PnLTracker) GetUnrealizedPnL(currentPrices map[string]int64) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unrealized int64
	for symbol, entry := range p.costBasis {
		if entry.Qty == 0 {
			continue
		}
		if price, ok := currentPrices[symbol]; ok {
			// Signed Qty makes this correct for shorts too.
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}
	return unrealized
}

// GetTrades returns a snapshot of all trades.
func (p *PnLTracker) GetTrades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary is a point-in-time P&L summary.
type PnLSummary struct {
	RealizedPnL   int64 `json:"realized_pnl"`
	UnrealizedPnL int64 `json:"unrealized_pnl"`
	TotalPnL      int64 `json:"total_pnl"`
	TotalTrades   int   `json:"total_trades"`
	OpenPositions int   `json:"open_positions"`
}

// GetSummary returns the current P&L summary.
func (p *PnLTracker) GetSummary(currentPrices map[string]int64) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	unrealized := int64(0)
	openPositions := 0
	for symbol, entry := range p.costBasis {
		if entry.Qty == 0 {
			continue
		}
		openPositions++
		if price, ok := currentPrices[symbol]; ok {
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}

	return PnLSummary{
		RealizedPnL:   p.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realizedPnL + unrealized,
		TotalTrades:   len(p.trades),
		OpenPositions: openPositions,
	}
}
