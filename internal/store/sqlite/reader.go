package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"swingtrader/internal/model"
)

// ErrRunNotFound is returned by ReadRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Reader provides read-only access to the bar store for backtests.
type Reader struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string, log zerolog.Logger) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log = log.With().Str("component", "sqlite-reader").Logger()
	log.Info().Str("path", dbPath).Msg("opened")
	return &Reader{db: db, log: log}, nil
}

// Symbols returns every stored symbol in ascending order.
func (r *Reader) Symbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadBars reads the bars of symbol with from <= time < to, ordered by
// timestamp ascending. A zero from or to leaves that side open.
func (r *Reader) ReadBars(symbol string, from, to time.Time) ([]model.Bar, error) {
	lo, hi := int64(-1<<62), int64(1<<62)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b      model.Bar
			tsUnix int64
		)
		if err := rows.Scan(&b.Symbol, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Time = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LoadOptions selects which instruments LoadInstruments returns.
type LoadOptions struct {
	Symbols []string  // empty = every stored symbol
	Exclude []string  // e.g. the market index symbol
	MinBars int       // instruments with fewer bars are skipped
	From    time.Time // inclusive, zero = unbounded
	To      time.Time // exclusive, zero = unbounded
}

// LoadInstruments reads the selected instruments. Instruments shorter than
// MinBars are left out and reported in skipped.
func (r *Reader) LoadInstruments(opts LoadOptions) (instruments []model.Instrument, skipped []string, err error) {
	symbols := opts.Symbols
	if len(symbols) == 0 {
		if symbols, err = r.Symbols(); err != nil {
			return nil, nil, err
		}
	}
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, s := range opts.Exclude {
		exclude[s] = struct{}{}
	}

	for _, sym := range symbols {
		if _, ok := exclude[sym]; ok {
			continue
		}
		bars, err := r.ReadBars(sym, opts.From, opts.To)
		if err != nil {
			return nil, nil, err
		}
		if len(bars) < opts.MinBars {
			r.log.Debug().Str("symbol", sym).Int("bars", len(bars)).Int("min", opts.MinBars).Msg("skipping short history")
			skipped = append(skipped, sym)
			continue
		}
		instruments = append(instruments, model.Instrument{Symbol: sym, Bars: bars})
	}
	r.log.Info().Int("loaded", len(instruments)).Int("skipped", len(skipped)).Msg("instruments loaded")
	return instruments, skipped, nil
}

// ReadRun loads a stored run.
func (r *Reader) ReadRun(id string) (RunRecord, error) {
	var (
		rec               RunRecord
		started, finished int64
		opts, summary     string
		sig, halted       string
	)
	err := r.db.QueryRow(`
		SELECT id, started_at, finished_at, options, summary, signaled, halted
		FROM runs WHERE id = ?
	`, id).Scan(&rec.ID, &started, &finished, &opts, &summary, &sig, &halted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return RunRecord{}, fmt.Errorf("sqlite read run: %w", err)
	}
	rec.StartedAt = time.Unix(started, 0).UTC()
	rec.FinishedAt = time.Unix(finished, 0).UTC()
	rec.Options = json.RawMessage(opts)
	rec.Summary = json.RawMessage(summary)
	if err := json.Unmarshal([]byte(sig), &rec.Signaled); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal signaled: %w", err)
	}
	if err := json.Unmarshal([]byte(halted), &rec.Halted); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal halted: %w", err)
	}
	return rec, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
