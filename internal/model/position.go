package model

// Position represents a tracked backtest/paper position.
type Position struct {
	Symbol      string `json:"symbol"`
	Qty         int64  `json:"qty"`          // positive = long, negative = short
	AvgPrice    int64  `json:"avg_price"`    // points
	LastPrice   int64  `json:"last_price"`   // latest market price in points
	RealizedPnL int64  `json:"realized_pnl"` // points
}

// UnrealizedPnL computes unrealized profit/loss in points.
func (p *Position) UnrealizedPnL() int64 {
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// Key returns the tracking key for this position.
func (p *Position) Key() string {
	return p.Symbol
}
