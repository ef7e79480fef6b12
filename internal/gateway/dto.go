package gateway

// TFInfo is the REST response type for /api/tfs.
type TFInfo struct {
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// BarOut is the REST response type for /api/bars, prices in quote units.
type BarOut struct {
	TS     string  `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	Symbol string  `json:"symbol"`
	TF     int     `json:"tf"`
}

// FilterPoint is the REST response type for /api/filters/history.
type FilterPoint struct {
	TS    string  `json:"ts"`
	Value float64 `json:"value"`
	Gamma float64 `json:"gamma"`
	Trend string  `json:"trend"`
}
