package model

import (
	"encoding/json"
	"time"
)

// Candle represents a finalized or forming OHLC bar for a single symbol.
// TF is the bar duration in seconds (e.g., 3600 = H1, 86400 = D1).
// All prices are in points (int64, 1 price unit = 100000 points) to avoid
// floating-point drift on the wire and in storage.
type Candle struct {
	Symbol  string    `json:"symbol"`
	TF      int       `json:"tf"`      // bar duration in seconds
	TS      time.Time `json:"ts"`      // bar open time (UTC, TF-aligned)
	Open    int64     `json:"open"`    // points
	High    int64     `json:"high"`    // points
	Low     int64     `json:"low"`     // points
	Close   int64     `json:"close"`   // points
	Volume  int64     `json:"volume"`  // tick volume
	Forming bool      `json:"forming"` // true if the bar is still open
}

// Key returns the engine state key for this candle's symbol.
func (c *Candle) Key() string {
	return c.Symbol
}

// StreamKey returns the Redis stream key: "bar:{TF}s:{symbol}".
func (c *Candle) StreamKey() string {
	return "bar:" + Itoa(c.TF) + "s:" + c.Symbol
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// AppliedPrice selects which bar price feeds a filter.
type AppliedPrice int

const (
	PriceClose AppliedPrice = iota
	PriceOpen
	PriceHigh
	PriceLow
	PriceMedian  // (high+low)/2
	PriceTypical // (high+low+close)/3
)

// String returns the config spelling of the applied price.
func (ap AppliedPrice) String() string {
	switch ap {
	case PriceClose:
		return "CLOSE"
	case PriceOpen:
		return "OPEN"
	case PriceHigh:
		return "HIGH"
	case PriceLow:
		return "LOW"
	case PriceMedian:
		return "MEDIAN"
	case PriceTypical:
		return "TYPICAL"
	}
	return "UNKNOWN"
}

// ParseAppliedPrice parses the config spelling. Unknown values return
// PriceClose and false.
func ParseAppliedPrice(s string) (AppliedPrice, bool) {
	switch s {
	case "CLOSE", "":
		return PriceClose, true
	case "OPEN":
		return PriceOpen, true
	case "HIGH":
		return PriceHigh, true
	case "LOW":
		return PriceLow, true
	case "MEDIAN":
		return PriceMedian, true
	case "TYPICAL":
		return PriceTypical, true
	}
	return PriceClose, false
}

// Price extracts the applied price from the candle, converted to price units.
func (c *Candle) Price(ap AppliedPrice) float64 {
	switch ap {
	case PriceOpen:
		return PointsToPrice(c.Open)
	case PriceHigh:
		return PointsToPrice(c.High)
	case PriceLow:
		return PointsToPrice(c.Low)
	case PriceMedian:
		return PointsToPrice(c.High+c.Low) / 2
	case PriceTypical:
		return PointsToPrice(c.High+c.Low+c.Close) / 3
	default:
		return PointsToPrice(c.Close)
	}
}
