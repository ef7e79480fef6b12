// Package strategy provides the strategy engine for trading on filter output.
//
// A Strategy receives completed bars together with the filter results computed
// from them and emits trading signals (BUY/SELL/EXIT). The Engine manages
// strategy lifecycle: registration, data routing, and signal collection.
package strategy

import (
	"context"
	"time"

	"laguerre-systemv1/internal/model"
)

// Signal represents a trading signal emitted by a strategy.
type Signal struct {
	StrategyName string    `json:"strategy_name"`
	Action       Action    `json:"action"` // BUY, SELL, EXIT
	Symbol       string    `json:"symbol"`
	Qty          int64     `json:"qty"`
	Price        int64     `json:"price"` // signal price in points; 0 = market order
	Reason       string    `json:"reason"`
	TS           time.Time `json:"ts"` // timestamp of the bar that produced the signal
}

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionExit Action = "EXIT"
)

// BarUpdate couples a completed bar with the filter results computed from it.
type BarUpdate struct {
	Bar     model.Candle
	Results []model.FilterResult
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnBar is called once per completed bar, with the filter results that
	// bar produced. Return the signals the strategy wants acted on, or nil.
	OnBar(bar model.Candle, results []model.FilterResult) []Signal
}

// Engine manages registered strategies and routes bar updates to them.
type Engine struct {
	strategies []Strategy
	signalCh   chan Signal
}

// NewEngine creates a new strategy engine.
func NewEngine(signalBufferSize int) *Engine {
	return &Engine{
		signalCh: make(chan Signal, signalBufferSize),
	}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Signals returns the channel of signals emitted by strategies.
func (e *Engine) Signals() <-chan Signal {
	return e.signalCh
}

// Evaluate runs one bar update through every registered strategy and returns
// the produced signals in registration order. The backtester calls this
// directly because it needs signals synchronously, in bar order.
func (e *Engine) Evaluate(bar model.Candle, results []model.FilterResult) []Signal {
	var signals []Signal
	for _, s := range e.strategies {
		signals = append(signals, s.OnBar(bar, results)...)
	}
	return signals
}

// Run consumes bar updates and routes them to all registered strategies.
// Blocks until ctx is cancelled or updateCh is closed.
func (e *Engine) Run(ctx context.Context, updateCh <-chan BarUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updateCh:
			if !ok {
				return
			}
			for _, sig := range e.Evaluate(u.Bar, u.Results) {
				select {
				case e.signalCh <- sig:
				default:
					// signal channel full, drop
				}
			}
		}
	}
}
