package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"laguerre-systemv1/internal/strategy"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string          `json:"order_id"`
	Signal    strategy.Signal `json:"signal"`
	FillPrice int64           `json:"fill_price"` // in points
	FillQty   int64           `json:"fill_qty"`
	FilledAt  time.Time       `json:"filled_at"`
	Slippage  int64           `json:"slippage"` // simulated slippage in points
}

// PaperExecutor simulates order execution without real broker calls.
// Useful for backtesting and paper trading.
type PaperExecutor struct {
	mu       sync.RWMutex
	fills    []Fill
	resultCh chan OrderResult
	orderSeq int64

	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)
}

// NewPaperExecutor creates a paper trading executor.
// slippageBps controls simulated slippage in basis points of the signal price.
func NewPaperExecutor(resultBufferSize int, slippageBps int64) *PaperExecutor {
	return &PaperExecutor{
		fills:       make([]Fill, 0, 1000),
		resultCh:    make(chan OrderResult, resultBufferSize),
		slippageBps: slippageBps,
	}
}

// Results returns the channel of order results.
func (p *PaperExecutor) Results() <-chan OrderResult {
	return p.resultCh
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Fill(nil), p.fills...)
}

// Run consumes strategy signals and simulates execution until the channel
// closes or the context is cancelled.
func (p *PaperExecutor) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			p.Execute(sig)
		}
	}
}

// slip returns the slippage in points for a fill at price. BUY pays up,
// everything else (SELL, EXIT) gives up the same amount.
func (p *PaperExecutor) slip(price int64, action strategy.Action) (adjusted, slippage int64) {
	if price <= 0 || p.slippageBps <= 0 {
		return price, 0
	}
	slippage = price * p.slippageBps / 10000
	if action == strategy.ActionBuy {
		return price + slippage, slippage
	}
	return price - slippage, slippage
}

// Execute fills a signal at its price adjusted for slippage.
func (p *PaperExecutor) Execute(sig strategy.Signal) (Fill, error) {
	fillPrice, slippage := p.slip(sig.Price, sig.Action)

	filledAt := sig.TS
	if filledAt.IsZero() {
		filledAt = time.Now()
	}

	p.mu.Lock()
	p.orderSeq++
	fill := Fill{
		OrderID:   fmt.Sprintf("PAPER-%d", p.orderSeq),
		Signal:    sig,
		FillPrice: fillPrice,
		FillQty:   sig.Qty,
		FilledAt:  filledAt,
		Slippage:  slippage,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s %s qty=%d price=%d (slip=%d) order=%s reason=%s",
		sig.Action, sig.StrategyName, sig.Symbol,
		sig.Qty, fillPrice, slippage, fill.OrderID, sig.Reason)

	result := OrderResult{
		OrderID: fill.OrderID,
		Status:  "FILLED",
		Message: fmt.Sprintf("paper filled at %d", fillPrice),
		Signal:  sig,
	}
	select {
	case p.resultCh <- result:
	default:
		// result channel full, drop
	}

	return fill, nil
}
