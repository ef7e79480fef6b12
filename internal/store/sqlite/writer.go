package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"laguerre-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	snapshotKeep      = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL
// mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer, so one connection is all we want
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS bars (
		symbol  TEXT    NOT NULL,
		tf      INTEGER NOT NULL,
		ts      INTEGER NOT NULL,
		open    INTEGER NOT NULL,
		high    INTEGER NOT NULL,
		low     INTEGER NOT NULL,
		close   INTEGER NOT NULL,
		volume  INTEGER,
		PRIMARY KEY (symbol, tf, ts)
	);

	CREATE TABLE IF NOT EXISTS filter_results (
		name    TEXT    NOT NULL,
		symbol  TEXT    NOT NULL,
		tf      INTEGER NOT NULL,
		ts      INTEGER NOT NULL,
		value   REAL    NOT NULL,
		gamma   REAL    NOT NULL,
		trend   TEXT    NOT NULL,
		PRIMARY KEY (name, symbol, tf, ts)
	);

	CREATE TABLE IF NOT EXISTS alf_snapshots (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		data       TEXT    NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
`

// batchInsert runs insertSQL as a prepared statement inside one
// transaction, calling args once per row.
func (w *Writer) batchInsert(ctx context.Context, insertSQL string, n int, args func(i int) []interface{}) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		row := args(i)
		if row == nil {
			continue
		}
		if _, err := stmt.Exec(row...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RunBars reads completed bars from barCh and inserts them in batched
// transactions. Flushes every defaultBatchSize bars OR every
// defaultFlushDelay, whichever first. Blocks until ctx is cancelled or
// barCh is closed.
func (w *Writer) RunBars(ctx context.Context, barCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBarBatch(batch); err != nil {
			log.Printf("[sqlite] bar batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d bars in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			if bar.Forming {
				continue // only completed bars are durable
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBarBatch inserts a batch of bars in a single transaction.
func (w *Writer) insertBarBatch(bars []model.Candle) error {
	const insertSQL = `
		INSERT OR REPLACE INTO bars (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	return w.batchInsert(context.Background(), insertSQL, len(bars), func(i int) []interface{} {
		b := bars[i]
		return []interface{}{b.Symbol, b.TF, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume}
	})
}

// WriteResultBatch inserts confirmed filter results in a single
// transaction. Live previews and warm-up values are skipped — only
// steady-state outputs are worth keeping on disk.
func (w *Writer) WriteResultBatch(ctx context.Context, results []model.FilterResult) error {
	if len(results) == 0 {
		return nil
	}
	const insertSQL = `
		INSERT OR REPLACE INTO filter_results (name, symbol, tf, ts, value, gamma, trend)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return w.batchInsert(ctx, insertSQL, len(results), func(i int) []interface{} {
		r := &results[i]
		if r.Live || !r.Ready {
			return nil
		}
		return []interface{}{r.Name, r.Symbol, r.TF, r.TS.Unix(), r.Value, r.Gamma, r.Trend.String()}
	})
}

// GetLastTimestamp returns the last stored bar timestamp for a given
// symbol and TF. Returns 0 if no bars exist.
func (w *Writer) GetLastTimestamp(symbol string, tf int) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND tf = ?`,
		symbol, tf,
	).Scan(&ts)
	if err != nil || !ts.Valid {
		return 0, err
	}
	return ts.Int64, nil
}

// SaveSnapshotJSON saves a JSON-encoded engine snapshot to SQLite.
func (w *Writer) SaveSnapshotJSON(data []byte) error {
	if _, err := w.db.Exec(`INSERT INTO alf_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	// Prune old snapshots — keep the most recent few
	_, err := w.db.Exec(`DELETE FROM alf_snapshots WHERE id NOT IN (SELECT id FROM alf_snapshots ORDER BY created_at DESC, id DESC LIMIT ?)`, snapshotKeep)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
