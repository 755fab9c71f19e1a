// Package sqlite is the bar history store: daily OHLCV bars per instrument
// plus one row per backtest run with its options and results.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"swingtrader/internal/model"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db  *sql.DB
	log zerolog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a SQLite Writer and initializes the database with WAL mode and schema.
func New(cfg WriterConfig, log zerolog.Logger) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With().Str("component", "sqlite").Logger()
	log.Info().Str("path", cfg.DBPath).Msg("opened database")
	return &Writer{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT    PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			options     TEXT    NOT NULL,
			summary     TEXT    NOT NULL,
			signaled    TEXT    NOT NULL,
			halted      TEXT    NOT NULL
		);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batch-size bars OR every flush delay, whichever first.
// Blocks until ctx is cancelled or barCh is closed and returns the number
// of bars committed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) int {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	committed := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertBars(batch); err != nil {
			w.log.Error().Err(err).Int("bars", len(batch)).Msg("batch insert failed")
		} else {
			committed += len(batch)
			w.log.Debug().Int("bars", len(batch)).Dur("took", time.Since(start)).Msg("committed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return committed

		case b, ok := <-barCh:
			if !ok {
				flush()
				return committed
			}
			batch = append(batch, b)
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

// InsertBars inserts bars in a single transaction, replacing any bar with
// the same symbol and timestamp.
func (w *Writer) InsertBars(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s@%d: %w", b.Symbol, b.Time.Unix(), err)
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored bar time for symbol, or the zero
// time if none exist.
func (w *Writer) GetLastTimestamp(symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(`SELECT MAX(ts) FROM bars WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// RunRecord is one stored backtest run. Options and Summary are opaque JSON
// documents owned by the caller.
type RunRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Options    json.RawMessage `json:"options"`
	Summary    json.RawMessage `json:"summary"`
	Signaled   []string        `json:"signaled"`
	Halted     []string        `json:"halted"`
}

// SaveRun stores a run result.
func (w *Writer) SaveRun(r RunRecord) error {
	signaled, err := json.Marshal(nonNil(r.Signaled))
	if err != nil {
		return fmt.Errorf("marshal signaled: %w", err)
	}
	halted, err := json.Marshal(nonNil(r.Halted))
	if err != nil {
		return fmt.Errorf("marshal halted: %w", err)
	}
	opts, summary := r.Options, r.Summary
	if len(opts) == 0 {
		opts = json.RawMessage("{}")
	}
	if len(summary) == 0 {
		summary = json.RawMessage("{}")
	}

	_, err = w.db.Exec(`
		INSERT OR REPLACE INTO runs (id, started_at, finished_at, options, summary, signaled, halted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.Unix(), r.FinishedAt.Unix(), string(opts), string(summary), string(signaled), string(halted))
	if err != nil {
		return fmt.Errorf("sqlite insert run: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
