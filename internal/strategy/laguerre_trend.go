package strategy

import (
	"log"

	"laguerre-systemv1/internal/model"
)

// LaguerreTrendConfig holds the tunable rules for the Laguerre trend strategy.
type LaguerreTrendConfig struct {
	FilterName string `json:"filter_name"` // result name to trade, e.g. "ALF_4_10"
	TF         int    `json:"tf"`          // bar duration in seconds
	Qty        int64  `json:"qty"`         // units per trade

	// Entry filters. Zero disables the corresponding filter.
	MinDistance  int64   `json:"min_distance"`   // min |close - filter| in points before entering
	MaxGammaJump float64 `json:"max_gamma_jump"` // skip entries when gamma moved more than this in one bar
	PersistBars  int     `json:"persist_bars"`   // trend must hold this many closed bars before entry

	AllowShort bool `json:"allow_short"` // open shorts on DOWN instead of only exiting longs
}

// LaguerreTrend trades the direction of an adaptive Laguerre filter line.
//
// Entry: the filter trend flips UP and holds for PersistBars bars.
// Exit: the trend flips against the open position (always honored,
// regardless of the entry filters). A flip bar that closes a position
// may also open one in the new direction on the same bar, provided the
// entry filters pass, so with PersistBars=1 the strategy stops and
// reverses.
//
// Two optional entry filters cut down whipsaw trades: a minimum distance
// between the close and the filter line, and a cap on how fast gamma may
// have moved on the entry bar (a large jump means the adaptive window just
// saw a volatility shock and the line is still re-anchoring).
type LaguerreTrend struct {
	name string
	cfg  LaguerreTrendConfig

	// Per-symbol tracking state
	states map[string]*trendTracker
}

type trendTracker struct {
	trend  model.Trend
	runLen int // consecutive ready bars with the same trend

	prevGamma float64
	hasGamma  bool

	pos int // +1 long, -1 short, 0 flat
}

// NewLaguerreTrend creates the strategy. PersistBars below 1 is treated
// as 1 (act on the flip bar itself).
func NewLaguerreTrend(cfg LaguerreTrendConfig) *LaguerreTrend {
	if cfg.PersistBars < 1 {
		cfg.PersistBars = 1
	}
	if cfg.Qty <= 0 {
		cfg.Qty = 1
	}
	return &LaguerreTrend{
		name:   "Laguerre_Trend_" + cfg.FilterName,
		cfg:    cfg,
		states: make(map[string]*trendTracker),
	}
}

func (s *LaguerreTrend) Name() string {
	return s.name
}

func (s *LaguerreTrend) OnBar(bar model.Candle, results []model.FilterResult) []Signal {
	if bar.TF != s.cfg.TF {
		return nil
	}
	r, ok := findResult(results, s.cfg.FilterName, s.cfg.TF, bar.Symbol)
	if !ok || !r.Ready {
		return nil
	}

	st := s.states[bar.Symbol]
	if st == nil {
		st = &trendTracker{}
		s.states[bar.Symbol] = st
	}

	// Track how long the current trend has held.
	if r.Trend == st.trend {
		st.runLen++
	} else {
		st.trend = r.Trend
		st.runLen = 1
	}

	gammaJump := 0.0
	if st.hasGamma {
		gammaJump = absFloat(r.Gamma - st.prevGamma)
	}
	defer func() {
		st.prevGamma = r.Gamma
		st.hasGamma = true
	}()

	var signals []Signal

	// Exits come first and are never filtered: a trend flip against an
	// open position always closes it.
	if st.pos > 0 && st.trend == model.TrendDown {
		signals = append(signals, s.signal(ActionExit, bar, "trend flipped DOWN (close long)"))
		st.pos = 0
	}
	if st.pos < 0 && st.trend == model.TrendUp {
		signals = append(signals, s.signal(ActionExit, bar, "trend flipped UP (close short)"))
		st.pos = 0
	}

	if st.pos != 0 || st.runLen < s.cfg.PersistBars {
		return signals
	}
	wantLong := st.trend == model.TrendUp
	wantShort := st.trend == model.TrendDown && s.cfg.AllowShort
	if !wantLong && !wantShort {
		return signals
	}

	// Entry filters.
	if s.cfg.MaxGammaJump > 0 && st.hasGamma && gammaJump > s.cfg.MaxGammaJump {
		log.Printf("[strategy] %s: %s entry filtered, gamma jump %.4f > %.4f",
			s.name, bar.Symbol, gammaJump, s.cfg.MaxGammaJump)
		return signals
	}
	if s.cfg.MinDistance > 0 {
		dist := bar.Close - model.PriceToPoints(r.Value)
		if dist < 0 {
			dist = -dist
		}
		if dist < s.cfg.MinDistance {
			log.Printf("[strategy] %s: %s entry filtered, distance %d < %d points",
				s.name, bar.Symbol, dist, s.cfg.MinDistance)
			return signals
		}
	}

	if wantLong {
		signals = append(signals, s.signal(ActionBuy, bar, "laguerre trend UP (filter rising)"))
		st.pos = 1
	} else {
		signals = append(signals, s.signal(ActionSell, bar, "laguerre trend DOWN (filter falling)"))
		st.pos = -1
	}
	return signals
}

func (s *LaguerreTrend) signal(action Action, bar model.Candle, reason string) Signal {
	return Signal{
		StrategyName: s.name,
		Action:       action,
		Symbol:       bar.Symbol,
		Qty:          s.cfg.Qty,
		Price:        bar.Close,
		Reason:       reason,
		TS:           bar.TS,
	}
}

func findResult(results []model.FilterResult, name string, tf int, symbol string) (model.FilterResult, bool) {
	for _, r := range results {
		if r.Name == name && r.TF == tf && r.Symbol == symbol {
			return r, true
		}
	}
	return model.FilterResult{}, false
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
