package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Trend is the discrete direction label derived from consecutive
// filtered values.
type Trend int8

const (
	TrendNeutral Trend = iota
	TrendUp
	TrendDown
)

// String returns the wire spelling of the trend.
func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "UP"
	case TrendDown:
		return "DOWN"
	}
	return "NEUTRAL"
}

// MarshalJSON encodes the trend as its string form.
func (t Trend) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes the string form back into a Trend.
func (t *Trend) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	tr, ok := ParseTrend(s)
	if !ok {
		return fmt.Errorf("unknown trend %q", s)
	}
	*t = tr
	return nil
}

// ParseTrend parses the wire spelling. Unknown values return
// TrendNeutral and false.
func ParseTrend(s string) (Trend, bool) {
	switch s {
	case "UP":
		return TrendUp, true
	case "DOWN":
		return TrendDown, true
	case "NEUTRAL", "":
		return TrendNeutral, true
	}
	return TrendNeutral, false
}

// FilterResult holds one computed filter output for a symbol + TF.
// Value and Gamma are in price units / raw coefficient space; during
// bootstrap and warm-up Ready is false and downstream consumers must
// not treat the values as signals.
type FilterResult struct {
	Name   string    `json:"name"` // e.g. "ALF_4_10"
	Symbol string    `json:"symbol"`
	TF     int       `json:"tf"` // bar duration in seconds
	Value  float64   `json:"value"`
	Gamma  float64   `json:"gamma"`
	Trend  Trend     `json:"trend"`
	TS     time.Time `json:"ts"`    // bar timestamp that produced this value
	Ready  bool      `json:"ready"` // true once the filter reached steady state
	Live   bool      `json:"live"`  // true for preview values from forming bars
}

// StreamKey returns the Redis stream key: "alf:{name}:{TF}s:{symbol}".
func (r *FilterResult) StreamKey() string {
	return "alf:" + r.Name + ":" + Itoa(r.TF) + "s:" + r.Symbol
}

// PubSubChannel returns the pub/sub channel: "pub:alf:{name}:{TF}s:{symbol}".
func (r *FilterResult) PubSubChannel() string {
	return "pub:alf:" + r.Name + ":" + Itoa(r.TF) + "s:" + r.Symbol
}

// JSON returns the JSON-encoded filter result.
func (r *FilterResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
