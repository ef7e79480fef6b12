package model

import "time"

// Quote represents a single intrabar price update from the live feed.
// Prices are stored as int64 points to avoid float drift on the wire.
type Quote struct {
	Symbol  string    `json:"symbol"`
	Bid     int64     `json:"bid"`      // points
	Ask     int64     `json:"ask"`      // points
	QuoteTS time.Time `json:"quote_ts"` // UTC timestamp
}

// Mid returns the bid/ask midpoint in points.
func (q *Quote) Mid() int64 {
	return (q.Bid + q.Ask) / 2
}
