package pricefile

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"laguerre-systemv1/internal/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

func TestReadBars_UnixTimestampsWithHeader(t *testing.T) {
	path := writeTemp(t, "bars.csv", `ts,open,high,low,close,volume
1704067200,195.10,195.50,194.90,195.30,120
1704070800,195.30,195.80,195.20,195.60,98
1704074400,195.60,195.70,195.00,195.10,110
`)

	bars, err := ReadBars(path, "GBPJPY", 3600, LoadOptions{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	if bars[0].Symbol != "GBPJPY" || bars[0].TF != 3600 {
		t.Fatalf("bar identity wrong: %+v", bars[0])
	}
	if bars[0].Close != 19_530_000 {
		t.Fatalf("close = %d points, want 19530000", bars[0].Close)
	}
	if bars[0].Volume != 120 {
		t.Fatalf("volume = %d, want 120", bars[0].Volume)
	}
	if !bars[1].TS.Equal(time.Unix(1704070800, 0).UTC()) {
		t.Fatalf("ts = %v", bars[1].TS)
	}
}

func TestReadBars_HumanTimestampsNoVolume(t *testing.T) {
	path := writeTemp(t, "bars.csv", `2024-01-01 00:00:00,1.1000,1.1010,1.0990,1.1005
2024-01-01 01:00:00,1.1005,1.1020,1.1000,1.1015
`)

	bars, err := ReadBars(path, "EURUSD", 3600, LoadOptions{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Volume != 0 {
		t.Fatalf("missing volume should read as 0, got %d", bars[0].Volume)
	}
	if bars[1].Close != 110_150 {
		t.Fatalf("close = %d points, want 110150", bars[1].Close)
	}
}

func TestReadBars_TerminalDateTimeColumns(t *testing.T) {
	// Terminal exports split the timestamp: date,time,o,h,l,c,volume.
	path := writeTemp(t, "bars.csv", `2019.01.07,00:00,139.20,139.45,139.05,139.30,4021
2019.01.07,04:00,139.30,139.60,139.25,139.55,3866
`)

	bars, err := ReadBars(path, "GBPJPY", 14400, LoadOptions{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	want := time.Date(2019, 1, 7, 4, 0, 0, 0, time.UTC)
	if !bars[1].TS.Equal(want) {
		t.Fatalf("merged ts = %v, want %v", bars[1].TS, want)
	}
	if bars[1].Volume != 3866 {
		t.Fatalf("volume = %d, want 3866", bars[1].Volume)
	}
}

func TestReadBars_RejectsGaps(t *testing.T) {
	path := writeTemp(t, "bars.csv", `ts,open,high,low,close
1704067200,195.1,195.5,194.9,195.3
1704074400,195.6,195.7,195.0,195.1
`)

	if _, err := ReadBars(path, "GBPJPY", 3600, LoadOptions{}); err == nil {
		t.Fatal("expected gap error, got nil")
	}

	// Same file loads with AllowGaps.
	bars, err := ReadBars(path, "GBPJPY", 3600, LoadOptions{AllowGaps: true})
	if err != nil {
		t.Fatalf("AllowGaps load: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
}

func TestReadBars_RejectsNonAscending(t *testing.T) {
	path := writeTemp(t, "bars.csv", `ts,open,high,low,close
1704070800,195.3,195.8,195.2,195.6
1704067200,195.1,195.5,194.9,195.3
`)

	if _, err := ReadBars(path, "GBPJPY", 3600, LoadOptions{}); err == nil {
		t.Fatal("expected ordering error, got nil")
	}

	// Duplicates are also not ascending.
	path = writeTemp(t, "dup.csv", `ts,open,high,low,close
1704067200,195.1,195.5,194.9,195.3
1704067200,195.1,195.5,194.9,195.3
`)
	if _, err := ReadBars(path, "GBPJPY", 3600, LoadOptions{}); err == nil {
		t.Fatal("expected duplicate-timestamp error, got nil")
	}
}

func TestReadBars_EmptyFileErrors(t *testing.T) {
	path := writeTemp(t, "bars.csv", "ts,open,high,low,close,volume\n")
	if _, err := ReadBars(path, "GBPJPY", 3600, LoadOptions{}); err == nil {
		t.Fatal("expected error for header-only file")
	}
}

func TestWriteBars_RoundTrip(t *testing.T) {
	bars := []model.Candle{
		{Symbol: "GBPJPY", TF: 3600, TS: time.Unix(1704067200, 0).UTC(),
			Open: 19_510_000, High: 19_550_000, Low: 19_490_000, Close: 19_530_000, Volume: 120},
		{Symbol: "GBPJPY", TF: 3600, TS: time.Unix(1704070800, 0).UTC(),
			Open: 19_530_000, High: 19_580_000, Low: 19_520_000, Close: 19_560_000, Volume: 98},
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteBars(path, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ReadBars(path, "GBPJPY", 3600, LoadOptions{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != len(bars) {
		t.Fatalf("round trip lost bars: %d != %d", len(got), len(bars))
	}
	for i := range bars {
		if got[i].Close != bars[i].Close || !got[i].TS.Equal(bars[i].TS) {
			t.Fatalf("bar %d mismatch: got %+v want %+v", i, got[i], bars[i])
		}
	}
}

func TestReadReference_NaNWarmup(t *testing.T) {
	path := writeTemp(t, "ref.csv", `ts,value
1704067200,nan
1704070800,
1704074400,195.41234
`)

	points, err := ReadReference(path)
	if err != nil {
		t.Fatalf("ReadReference: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	if !math.IsNaN(points[0].Value) || !math.IsNaN(points[1].Value) {
		t.Fatalf("warm-up rows should be NaN: %v, %v", points[0].Value, points[1].Value)
	}
	if points[2].Value != 195.41234 {
		t.Fatalf("value = %v, want 195.41234", points[2].Value)
	}

	vals := Values(points)
	if len(vals) != 3 || vals[2] != 195.41234 {
		t.Fatalf("Values extraction wrong: %v", vals)
	}
}
