package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"laguerre-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backfill, replay,
// backtests, and snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for a specific symbol and TF after a Unix
// timestamp, ordered ascending for correct replay order.
func (r *Reader) ReadBars(symbol string, tf int, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// ReadAllBars reads all bars for a given TF across every symbol,
// ordered by timestamp (symbol breaks ties so replay is deterministic).
func (r *Reader) ReadAllBars(tf int, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC, symbol ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]model.Candle, error) {
	var bars []model.Candle
	for rows.Next() {
		var b model.Candle
		var tsUnix int64
		var volume sql.NullInt64
		if err := rows.Scan(&b.Symbol, &b.TF, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		b.Volume = volume.Int64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols returns the distinct symbols stored for a TF.
func (r *Reader) Symbols(tf int) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars WHERE tf = ? ORDER BY symbol`, tf)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ReadResults reads stored filter results for one filter + symbol + TF
// after a Unix timestamp, ordered ascending. Stored results are always
// confirmed steady-state values, so Ready is set on the way out.
func (r *Reader) ReadResults(name, symbol string, tf int, afterTS int64) ([]model.FilterResult, error) {
	rows, err := r.db.Query(`
		SELECT name, symbol, tf, ts, value, gamma, trend
		FROM filter_results
		WHERE name = ? AND symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, name, symbol, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query filter_results: %w", err)
	}
	defer rows.Close()

	var results []model.FilterResult
	for rows.Next() {
		var fr model.FilterResult
		var tsUnix int64
		var trend string
		if err := rows.Scan(&fr.Name, &fr.Symbol, &fr.TF, &tsUnix, &fr.Value, &fr.Gamma, &trend); err != nil {
			return nil, fmt.Errorf("sqlite scan filter_results: %w", err)
		}
		fr.TS = time.Unix(tsUnix, 0).UTC()
		fr.Trend, _ = model.ParseTrend(trend)
		fr.Ready = true
		results = append(results, fr)
	}
	return results, rows.Err()
}

// ReadLatestSnapshotJSON loads the most recent engine snapshot as raw
// JSON. Returns nil, nil if no snapshot exists.
func (r *Reader) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM alf_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
