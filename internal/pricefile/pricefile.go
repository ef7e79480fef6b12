// Package pricefile loads and writes price-series CSV files.
//
// Two formats are understood:
//
//   - OHLCV bars: ts,open,high,low,close[,volume] — consumed by the
//     backtester, the optimizer, and cmd/feedsim. Terminal-style exports
//     that split the timestamp across date and time columns
//     ("2019.01.07,00:00,...") are detected and merged.
//   - Reference series: ts,value — filter output exported by another
//     implementation, consumed by cmd/verify. Warm-up rows may carry
//     "nan" or an empty value.
//
// Timestamps are unix seconds or one of a few common layouts, always read
// as UTC. A leading header row is detected and skipped. Bars must be
// strictly ascending in time; with a known TF, a missing bar fails the
// load unless AllowGaps is set — filling or rejecting gaps is the
// caller's decision, not something to paper over silently.
package pricefile

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"laguerre-systemv1/internal/model"
)

// LoadOptions adjusts how strictly ReadBars validates the series.
type LoadOptions struct {
	AllowGaps bool // tolerate missing bars instead of failing the load
}

var tsLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04",
	"2006-01-02",
}

// ReadBars reads an OHLCV CSV into completed bars for one symbol and TF.
func ReadBars(path, symbol string, tf int, opts LoadOptions) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var bars []model.Candle
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line++
		fields := mergeDateTime(rec)
		if len(fields) == 0 {
			continue
		}

		ts, err := parseTS(fields[0])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if len(fields) < 5 {
			return nil, fmt.Errorf("%s line %d: want ts,open,high,low,close[,volume], got %d fields",
				path, line, len(fields))
		}

		var px [4]int64
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad price %q", path, line, fields[i+1])
			}
			px[i] = model.PriceToPoints(v)
		}
		vol := int64(0)
		if len(fields) >= 6 {
			vol, _ = strconv.ParseInt(strings.TrimSpace(fields[5]), 10, 64)
		}

		bar := model.Candle{
			Symbol: symbol,
			TF:     tf,
			TS:     ts,
			Open:   px[0],
			High:   px[1],
			Low:    px[2],
			Close:  px[3],
			Volume: vol,
		}

		if n := len(bars); n > 0 {
			prev := bars[n-1].TS
			if !bar.TS.After(prev) {
				return nil, fmt.Errorf("%s line %d: timestamps not ascending (%s after %s)",
					path, line, bar.TS.Format(time.RFC3339), prev.Format(time.RFC3339))
			}
			if tf > 0 && !opts.AllowGaps {
				want := time.Duration(tf) * time.Second
				if delta := bar.TS.Sub(prev); delta != want {
					return nil, fmt.Errorf("%s line %d: %s gap before %s, expected %ds spacing",
						path, line, delta, bar.TS.Format(time.RFC3339), tf)
				}
			}
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars", path)
	}
	return bars, nil
}

// WriteBars writes bars as ts,open,high,low,close,volume with a header row.
func WriteBars(path string, bars []model.Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"ts", "open", "high", "low", "close", "volume"})
	for _, b := range bars {
		w.Write([]string{
			strconv.FormatInt(b.TS.Unix(), 10),
			fmtPrice(b.Open),
			fmtPrice(b.High),
			fmtPrice(b.Low),
			fmtPrice(b.Close),
			strconv.FormatInt(b.Volume, 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReferencePoint is one row of an exported filter series.
type ReferencePoint struct {
	TS    time.Time
	Value float64 // NaN for warm-up rows
}

// ReadReference reads a ts,value series exported by another implementation.
func ReadReference(path string) ([]ReferencePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var points []ReferencePoint
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line++
		if len(rec) < 2 {
			continue
		}
		ts, err := parseTS(rec[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		points = append(points, ReferencePoint{TS: ts, Value: parseValue(rec[1])})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%s: no reference points", path)
	}
	return points, nil
}

// Values extracts just the value column from a reference series.
func Values(points []ReferencePoint) []float64 {
	vals := make([]float64, len(points))
	for i, p := range points {
		vals[i] = p.Value
	}
	return vals
}

// Closes extracts the close column from bars as float prices.
func Closes(bars []model.Candle) []float64 {
	vals := make([]float64, len(bars))
	for i, b := range bars {
		vals[i] = model.PointsToPrice(b.Close)
	}
	return vals
}

func parseTS(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// mergeDateTime folds terminal-style "date,time,..." rows into "ts,...".
func mergeDateTime(rec []string) []string {
	if len(rec) < 7 {
		return rec
	}
	d, err := time.ParseInLocation("2006.01.02", strings.TrimSpace(rec[0]), time.UTC)
	if err != nil {
		return rec
	}
	hm, err := time.Parse("15:04", strings.TrimSpace(rec[1]))
	if err != nil {
		return rec
	}
	ts := d.Add(time.Duration(hm.Hour())*time.Hour + time.Duration(hm.Minute())*time.Minute)
	merged := make([]string, 0, len(rec)-1)
	merged = append(merged, strconv.FormatInt(ts.Unix(), 10))
	merged = append(merged, rec[2:]...)
	return merged
}

func fmtPrice(points int64) string {
	return strconv.FormatFloat(model.PointsToPrice(points), 'f', 5, 64)
}
