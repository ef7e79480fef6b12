// Package execution turns strategy signals into simulated order fills.
//
// There is no live broker here: the backtester and the paper trading loop
// both fill orders against the bar stream itself, with configurable
// slippage, and can journal every fill to SQLite for later analysis.
package execution

import (
	"context"

	"laguerre-systemv1/internal/strategy"
)

// OrderResult represents the outcome of an order placement.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // FILLED, REJECTED, ERROR
	Message string `json:"message"`
	Signal  strategy.Signal
}

// Executor is anything that can act on a strategy signal.
type Executor interface {
	// Execute fills a signal synchronously and returns the fill.
	Execute(sig strategy.Signal) (Fill, error)

	// Run consumes signals from a channel until ctx is cancelled or the
	// channel is closed.
	Run(ctx context.Context, signalCh <-chan strategy.Signal)

	// Results returns the channel of order results.
	Results() <-chan OrderResult
}
