package execution

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists simulated fills to SQLite so runs can be replayed
// and audited after the fact.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	action      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	qty         INTEGER NOT NULL,
	price       INTEGER NOT NULL,
	slippage    INTEGER DEFAULT 0,
	reason      TEXT,
	filled_at   DATETIME NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
`

// NewJournal opens (or creates) a journal database at dbPath.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists one fill.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(insertTradeSQL, tradeArgs(fill)...)
	return err
}

// RecordFills persists a batch of fills in one transaction. Used after
// a backtest run where fills arrive all at once.
func (j *Journal) RecordFills(fills []Fill) error {
	if len(fills) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(insertTradeSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, f := range fills {
		if _, err := stmt.Exec(tradeArgs(f)...); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()
	return tx.Commit()
}

const insertTradeSQL = `INSERT INTO trades
	(order_id, strategy, action, symbol, qty, price, slippage, reason, filled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func tradeArgs(f Fill) []interface{} {
	return []interface{}{
		f.OrderID,
		f.Signal.StrategyName,
		string(f.Signal.Action),
		f.Signal.Symbol,
		f.FillQty,
		f.FillPrice,
		f.Slippage,
		f.Signal.Reason,
		f.FilledAt.Format(time.RFC3339),
	}
}

// TradeRecord is one row of the trades table.
type TradeRecord struct {
	ID       int64  `json:"id"`
	OrderID  string `json:"order_id"`
	Strategy string `json:"strategy"`
	Action   string `json:"action"`
	Symbol   string `json:"symbol"`
	Qty      int64  `json:"qty"`
	Price    int64  `json:"price"`
	Slippage int64  `json:"slippage"`
	Reason   string `json:"reason"`
	FilledAt string `json:"filled_at"`
}

// GetTrades returns the last limit trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, strategy, action, symbol, qty, price, slippage, reason, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Strategy, &t.Action, &t.Symbol,
			&t.Qty, &t.Price, &t.Slippage, &t.Reason, &t.FilledAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
