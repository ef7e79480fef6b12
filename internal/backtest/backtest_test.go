package backtest

import (
	"testing"
	"time"

	"laguerre-systemv1/internal/laguerre"
	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/portfolio"
	"laguerre-systemv1/internal/strategy"
)

// btBars builds an hourly bar series from close prices (price units).
func btBars(symbol string, closes []float64) []model.Candle {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Candle, len(closes))
	for i, c := range closes {
		pts := model.PriceToPoints(c)
		bars[i] = model.Candle{
			Symbol: symbol,
			TF:     3600,
			TS:     base.Add(time.Duration(i) * time.Hour),
			Open:   pts,
			High:   pts + 5000,
			Low:    pts - 5000,
			Close:  pts,
			Volume: 50,
		}
	}
	return bars
}

// trendConfig pairs a fast fixed filter (ALF_2_2, gamma 10/11) with the
// trend strategy. Ready from bar 5, so the rising prelude below puts the
// first tradable trend at bar 5.
func trendConfig(qty int64, allowShort bool) Config {
	return Config{
		TF:      3600,
		Filters: []laguerre.Config{{Order: 2, Length: 2}},
		Strategy: strategy.NewLaguerreTrend(strategy.LaguerreTrendConfig{
			FilterName: "ALF_2_2",
			TF:         3600,
			Qty:        qty,
			AllowShort: allowShort,
		}),
	}
}

func TestBacktest_LongRoundTrip(t *testing.T) {
	// Rising into the first ready bar (5), then a hard drop at bar 7
	// flips the filter trend DOWN.
	closes := []float64{100, 101, 102, 103, 104, 105, 95, 90}

	eng, err := New(trendConfig(1, false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(btBars("GBPJPY", closes))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Bars != 8 || res.Signals != 2 || res.Fills != 2 || res.Rejected != 0 {
		t.Fatalf("counters wrong: %+v", res)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 round trip, got %d", len(res.Trades))
	}

	tr := res.Trades[0]
	if tr.Side != "LONG" || tr.Qty != 1 || tr.Symbol != "GBPJPY" {
		t.Fatalf("trade identity wrong: %+v", tr)
	}
	if tr.EntryPrice != 10_400_000 || tr.ExitPrice != 9_500_000 {
		t.Fatalf("entry/exit = %d/%d, want 10400000/9500000", tr.EntryPrice, tr.ExitPrice)
	}
	if tr.PnL != -900_000 {
		t.Fatalf("PnL = %d, want -900000", tr.PnL)
	}

	// Equity curve: flat until entry, marked to market while open,
	// realized after the exit.
	if len(res.Equity) != 8 {
		t.Fatalf("equity length = %d, want 8", len(res.Equity))
	}
	init := DefaultInitialEquity
	if res.Equity[4] != init {
		t.Fatalf("equity at entry bar = %d, want %d", res.Equity[4], init)
	}
	if res.Equity[5] != init+100_000 {
		t.Fatalf("marked equity = %d, want %d", res.Equity[5], init+100_000)
	}
	if res.Equity[6] != init-900_000 || res.FinalEquity != init-900_000 {
		t.Fatalf("final equity = %d, want %d", res.FinalEquity, init-900_000)
	}

	m := res.Metrics()
	if m["win_rate"] != 0 || m["profit_factor"] != 0 {
		t.Fatalf("loss-only metrics wrong: %+v", m)
	}
	if m["total_return"] >= 0 {
		t.Fatalf("total_return = %v, want negative", m["total_return"])
	}
}

func TestBacktest_ShortFlip(t *testing.T) {
	// Long entry at bar 5, crash at bar 6 reverses to short, and the
	// bounce at bar 8 reverses back long. The filter lags the raw
	// closes, so the bounce flips the trend at close 99, not at the
	// final 103.
	closes := []float64{100, 101, 102, 103, 104, 95, 90, 99, 103}

	eng, err := New(trendConfig(1, true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(btBars("GBPJPY", closes))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Signals != 5 || res.Fills != 5 {
		t.Fatalf("expected 5 signals/fills (BUY, EXIT, SELL, EXIT, BUY), got %+v", res)
	}
	// Only the two completed round trips count as trades; the reversal
	// long opened at 99.0 is still on at the end of the series.
	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 round trips, got %d", len(res.Trades))
	}

	long, short := res.Trades[0], res.Trades[1]
	if long.Side != "LONG" || long.PnL != -900_000 {
		t.Fatalf("long leg wrong: %+v", long)
	}
	if short.Side != "SHORT" || short.EntryPrice != 9_500_000 || short.ExitPrice != 9_900_000 {
		t.Fatalf("short leg wrong: %+v", short)
	}
	if short.PnL != -400_000 {
		t.Fatalf("short PnL = %d, want -400000", short.PnL)
	}

	// Mark-to-market of the open short: bar 7 at 90.0 is +5.0 unrealized.
	init := DefaultInitialEquity
	if res.Equity[6] != init-400_000 {
		t.Fatalf("equity with open short = %d, want %d", res.Equity[6], init-400_000)
	}
	// Bar 8: the short is closed and the reversal long fills at the
	// same 99.0 close, so equity is the pure realized -13.0.
	if res.Equity[7] != init-1_300_000 {
		t.Fatalf("equity after reversal = %d, want %d", res.Equity[7], init-1_300_000)
	}
	// Final bar marks the open long at 103.0: -13.0 realized, +4.0 open.
	if res.FinalEquity != init-900_000 {
		t.Fatalf("final equity = %d, want %d", res.FinalEquity, init-900_000)
	}
}

func TestBacktest_SlippageAppliedToFills(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 95, 90}

	cfg := trendConfig(1, false)
	cfg.SlippageBps = 10 // 0.1%
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(btBars("GBPJPY", closes))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	tr := res.Trades[0]
	// BUY fills above the close, the exit SELL below it.
	if tr.EntryPrice != 10_410_400 {
		t.Fatalf("entry = %d, want 10410400", tr.EntryPrice)
	}
	if tr.ExitPrice != 9_490_500 {
		t.Fatalf("exit = %d, want 9490500", tr.ExitPrice)
	}
	if tr.PnL != -919_900 {
		t.Fatalf("PnL = %d, want -919900", tr.PnL)
	}
}

func TestBacktest_RiskRejectsOversizedEntry(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 95, 90}

	cfg := trendConfig(5, false)
	cfg.RiskLimits = &portfolio.RiskLimits{
		MaxPositionSize:  2, // strategy wants 5
		MaxDailyLoss:     100_000_000,
		MaxOpenPositions: 5,
		MaxDrawdownPct:   100,
	}
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(btBars("GBPJPY", closes))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Rejected != 1 || res.Fills != 0 || len(res.Trades) != 0 {
		t.Fatalf("expected rejected entry and no fills: %+v", res)
	}
	// The later EXIT signal has no position behind it and must not fill.
	if res.FinalEquity != DefaultInitialEquity {
		t.Fatalf("equity moved despite no fills: %d", res.FinalEquity)
	}
}

func TestBacktest_SkipsFormingAndForeignTF(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 95, 90}
	bars := btBars("GBPJPY", closes)

	forming := bars[3]
	forming.Forming = true
	foreign := bars[3]
	foreign.TF = 900
	mixed := append(append(append([]model.Candle{}, bars[:4]...), forming, foreign), bars[4:]...)

	eng, err := New(trendConfig(1, false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(mixed)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bars != 8 {
		t.Fatalf("bars = %d, want 8 (forming and foreign TF skipped)", res.Bars)
	}
	if len(res.Trades) != 1 || res.Trades[0].PnL != -900_000 {
		t.Fatalf("trade outcome changed: %+v", res.Trades)
	}
}

func TestBacktest_ConfigValidation(t *testing.T) {
	strat := strategy.NewLaguerreTrend(strategy.LaguerreTrendConfig{FilterName: "ALF_2_2", TF: 3600})

	cases := []Config{
		{TF: 0, Filters: []laguerre.Config{{Order: 2, Length: 2}}, Strategy: strat},
		{TF: 3600, Strategy: strat},
		{TF: 3600, Filters: []laguerre.Config{{Order: 2, Length: 2}}},
		{TF: 3600, Filters: []laguerre.Config{{Order: 0, Length: 2}}, Strategy: strat},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}

	eng, err := New(trendConfig(1, false))
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if _, err := eng.Run(nil); err == nil {
		t.Fatal("expected error for empty bar slice")
	}
}
