package execution

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Journal persists simulated fills to SQLite for analysis and audit.
// Money columns are stored as decimal strings.
type Journal struct {
	mu    sync.Mutex
	db    *sql.DB
	runID string
}

// NewJournal opens (or creates) a SQLite journal database. Every fill
// recorded through it is tagged with runID.
func NewJournal(dbPath, runID string, log zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		order_id    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		reason      TEXT,
		qty         INTEGER NOT NULL,
		price       TEXT NOT NULL,
		commission  TEXT NOT NULL,
		realized    TEXT NOT NULL,
		decided_at  DATETIME NOT NULL,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	log.Info().Str("component", "journal").Str("path", dbPath).Str("run", runID).Msg("opened fill journal")
	return &Journal{db: db, runID: runID}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(f Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO fills (run_id, order_id, symbol, side, reason, qty, price, commission, realized, decided_at, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID,
		f.OrderID,
		f.Symbol,
		string(f.Side),
		string(f.Reason),
		f.Qty,
		f.Price.String(),
		f.Commission.String(),
		f.Realized.String(),
		f.DecidedAt.UTC().Format(time.RFC3339),
		f.FilledAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FillRecord represents a row from the fills table.
type FillRecord struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Reason     string          `json:"reason"`
	Qty        int64           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Realized   decimal.Decimal `json:"realized"`
	FilledAt   string          `json:"filled_at"`
}

// GetFills returns the last N fills of this journal's run, newest first.
func (j *Journal) GetFills(limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, run_id, order_id, symbol, side, reason, qty, price, commission, realized, filled_at
		 FROM fills WHERE run_id = ? ORDER BY id DESC LIMIT ?`, j.runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var (
			r                   FillRecord
			price, comm, realiz string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.OrderID, &r.Symbol, &r.Side, &r.Reason,
			&r.Qty, &price, &comm, &realiz, &r.FilledAt); err != nil {
			return nil, err
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("fill %d price: %w", r.ID, err)
		}
		if r.Commission, err = decimal.NewFromString(comm); err != nil {
			return nil, fmt.Errorf("fill %d commission: %w", r.ID, err)
		}
		if r.Realized, err = decimal.NewFromString(realiz); err != nil {
			return nil, fmt.Errorf("fill %d realized: %w", r.ID, err)
		}
		fills = append(fills, r)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
