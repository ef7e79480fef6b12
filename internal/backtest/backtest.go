// Package backtest replays completed bars through the filter engine and a
// strategy, simulating fills and tracking the equity curve.
package backtest

import (
	"fmt"
	"log"
	"time"

	"laguerre-systemv1/internal/execution"
	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/perf"
	"laguerre-systemv1/internal/portfolio"
	"laguerre-systemv1/internal/strategy"
)

// DefaultInitialEquity is 10,000.00 price units in points.
const DefaultInitialEquity = int64(1_000_000_000)

// Config describes one backtest run.
type Config struct {
	TF            int
	Filters       []laguerre.Config
	Strategy      strategy.Strategy
	InitialEquity int64 // points; 0 = DefaultInitialEquity
	SlippageBps   int64
	RiskLimits    *portfolio.RiskLimits // nil disables risk checks
}

// TradeResult is one closed round trip.
type TradeResult struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"` // LONG or SHORT
	Qty        int64     `json:"qty"`
	EntryTS    time.Time `json:"entry_ts"`
	ExitTS     time.Time `json:"exit_ts"`
	EntryPrice int64     `json:"entry_price"` // points
	ExitPrice  int64     `json:"exit_price"`  // points
	PnL        int64     `json:"pnl"`         // points
	Reason     string    `json:"reason"`      // exit reason
}

// Result holds everything a run produced.
type Result struct {
	Bars     int `json:"bars"`
	Signals  int `json:"signals"`
	Fills    int `json:"fills"`
	Rejected int `json:"rejected"` // risk-rejected signals

	Trades     []TradeResult `json:"trades"`
	Equity     []int64       `json:"equity"` // per completed bar, points
	Timestamps []time.Time   `json:"timestamps"`

	InitialEquity int64 `json:"initial_equity"`
	FinalEquity   int64 `json:"final_equity"`
}

// PerfRun converts the result into the float form the metrics consume.
func (r *Result) PerfRun() perf.Run {
	run := perf.Run{
		InitialEquity: model.PointsToPrice(r.InitialEquity),
		Equity:        make([]float64, len(r.Equity)),
		TradePnL:      make([]float64, len(r.Trades)),
	}
	for i, eq := range r.Equity {
		run.Equity[i] = model.PointsToPrice(eq)
	}
	for i, tr := range r.Trades {
		run.TradePnL[i] = model.PointsToPrice(tr.PnL)
	}
	return run
}

// Metrics computes the full metric set for the run.
func (r *Result) Metrics() map[string]float64 {
	run := r.PerfRun()
	out := make(map[string]float64, 8)
	for _, m := range perf.All() {
		out[m.Name()] = m.Compute(run)
	}
	return out
}

// openTrade tracks an open round trip until the closing fill arrives.
type openTrade struct {
	side  string
	qty   int64
	price int64
	ts    time.Time
}

// Engine drives one backtest run. An Engine is single-use: filters,
// strategy state, and P&L all carry over between bars, so a fresh
// candidate needs a fresh Engine.
type Engine struct {
	cfg     Config
	filters *laguerre.Engine
	strat   *strategy.Engine
	exec    *execution.PaperExecutor
	pf      *portfolio.Portfolio
	pnl     *portfolio.PnLTracker
	risk    *portfolio.RiskManager

	open      map[string]*openTrade
	lastClose map[string]int64
}

// New builds a ready-to-run engine from the config.
func New(cfg Config) (*Engine, error) {
	if cfg.TF <= 0 {
		return nil, fmt.Errorf("invalid TF=%d", cfg.TF)
	}
	if len(cfg.Filters) == 0 {
		return nil, fmt.Errorf("no filter configs")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("no strategy")
	}
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = DefaultInitialEquity
	}

	filters, err := laguerre.NewEngine([]laguerre.TFFilterConfig{{TF: cfg.TF, Filters: cfg.Filters}})
	if err != nil {
		return nil, err
	}

	strat := strategy.NewEngine(64)
	strat.Register(cfg.Strategy)

	e := &Engine{
		cfg:       cfg,
		filters:   filters,
		strat:     strat,
		exec:      execution.NewPaperExecutor(64, cfg.SlippageBps),
		pf:        portfolio.New(),
		pnl:       portfolio.NewPnLTracker(),
		open:      make(map[string]*openTrade),
		lastClose: make(map[string]int64),
	}
	if cfg.RiskLimits != nil {
		e.risk = portfolio.NewRiskManager(*cfg.RiskLimits, e.pf, cfg.InitialEquity)
	}
	return e, nil
}

// Fills returns the simulated fills from the run, for journaling.
func (e *Engine) Fills() []execution.Fill {
	return e.exec.GetFills()
}

// Run replays the bars in order and returns the accumulated result.
func (e *Engine) Run(bars []model.Candle) (Result, error) {
	if len(bars) == 0 {
		return Result{}, fmt.Errorf("no bars to backtest")
	}

	res := Result{InitialEquity: e.cfg.InitialEquity}
	for _, bar := range bars {
		if bar.Forming || bar.TF != e.cfg.TF {
			continue
		}

		results := e.filters.Process(bar)
		e.pf.UpdatePrice(bar)
		e.lastClose[bar.Symbol] = bar.Close

		for _, sig := range e.strat.Evaluate(bar, results) {
			res.Signals++
			if sig.Action == strategy.ActionExit && e.open[sig.Symbol] == nil {
				continue // position never opened (risk-rejected entry)
			}
			if sig.Action != strategy.ActionExit && e.risk != nil {
				if ok, reason := e.risk.CanTrade(sig.Symbol, sig.Qty, sig.Price); !ok {
					res.Rejected++
					log.Printf("[backtest] %s %s rejected: %s", sig.Action, sig.Symbol, reason)
					continue
				}
			}
			fill, err := e.exec.Execute(sig)
			if err != nil {
				continue
			}
			res.Fills++
			e.applyFill(fill, &res)
		}

		equity := e.cfg.InitialEquity + e.pnl.GetRealizedPnL() + e.pnl.GetUnrealizedPnL(e.lastClose)
		res.Equity = append(res.Equity, equity)
		res.Timestamps = append(res.Timestamps, bar.TS)
		res.Bars++
	}

	if res.Bars == 0 {
		return Result{}, fmt.Errorf("no completed bars matched TF=%d", e.cfg.TF)
	}
	res.FinalEquity = res.Equity[len(res.Equity)-1]
	return res, nil
}

// applyFill books a fill against the open position for its symbol,
// closing a round trip or opening a new one.
func (e *Engine) applyFill(fill execution.Fill, res *Result) {
	sig := fill.Signal
	open := e.open[sig.Symbol]

	closing := open != nil && (sig.Action == strategy.ActionExit ||
		(open.side == "LONG" && sig.Action == strategy.ActionSell) ||
		(open.side == "SHORT" && sig.Action == strategy.ActionBuy))

	if closing {
		action, signedQty := "SELL", -open.qty
		if open.side == "SHORT" {
			action, signedQty = "BUY", open.qty
		}
		realized := e.pnl.RecordTrade(portfolio.Trade{
			Symbol:    sig.Symbol,
			Action:    action,
			Qty:       open.qty,
			Price:     fill.FillPrice,
			Timestamp: fill.FilledAt,
		})
		e.pf.Apply(sig.Symbol, signedQty, fill.FillPrice)
		if e.risk != nil {
			e.risk.RecordPnL(realized)
		}
		res.Trades = append(res.Trades, TradeResult{
			Symbol:     sig.Symbol,
			Side:       open.side,
			Qty:        open.qty,
			EntryTS:    open.ts,
			ExitTS:     fill.FilledAt,
			EntryPrice: open.price,
			ExitPrice:  fill.FillPrice,
			PnL:        realized,
			Reason:     sig.Reason,
		})
		delete(e.open, sig.Symbol)
		return
	}
	if sig.Action == strategy.ActionExit {
		return // nothing open to exit
	}

	side, action, signedQty := "LONG", "BUY", fill.FillQty
	if sig.Action == strategy.ActionSell {
		side, action, signedQty = "SHORT", "SELL", -fill.FillQty
	}
	e.pnl.RecordTrade(portfolio.Trade{
		Symbol:    sig.Symbol,
		Action:    action,
		Qty:       fill.FillQty,
		Price:     fill.FillPrice,
		Timestamp: fill.FilledAt,
	})
	e.pf.Apply(sig.Symbol, signedQty, fill.FillPrice)
	e.open[sig.Symbol] = &openTrade{
		side:  side,
		qty:   fill.FillQty,
		price: fill.FillPrice,
		ts:    fill.FilledAt,
	}
}
