/*
Package store keeps the outcome of simulation runs in a SQLite database so
that sweeps over many configurations can be summarised later.
*/
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	synod "github.com/lucaerba/SLR-210"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	n          INTEGER NOT NULL,
	f          INTEGER NOT NULL,
	alpha      REAL    NOT NULL,
	tle_ms     INTEGER NOT NULL,
	seed       INTEGER NOT NULL,
	decided    INTEGER NOT NULL,
	value      INTEGER NOT NULL,
	agreement  INTEGER NOT NULL,
	latency_ns INTEGER NOT NULL,
	decisions  INTEGER NOT NULL,
	messages   INTEGER NOT NULL,
	created_at INTEGER NOT NULL
)`

// Record is one stored run.
type Record struct {
	ID        int64
	N         int
	F         int
	Alpha     float64
	Tle       time.Duration
	Seed      int64
	Decided   bool
	Value     synod.Value
	Agreement bool
	Latency   time.Duration
	Decisions int
	Messages  int64
	CreatedAt time.Time
}

// Summary aggregates the runs of one (N, f, alpha, tle) configuration.
type Summary struct {
	N           int
	F           int
	Alpha       float64
	Tle         time.Duration
	Runs        int
	Decided     int
	MeanLatency time.Duration // over decided runs only
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema in %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordFrom flattens the result of a run.
func RecordFrom(cfg synod.SimulationConfig, result *synod.Result) Record {
	return Record{
		N:         cfg.N,
		F:         cfg.F,
		Alpha:     cfg.Alpha,
		Tle:       cfg.HoldAfter,
		Seed:      result.Seed,
		Decided:   result.Decided,
		Value:     result.Value,
		Agreement: result.Agreement,
		Latency:   result.Latency,
		Decisions: len(result.Decisions),
		Messages:  result.Messages,
		CreatedAt: time.Now(),
	}
}

// SaveRun inserts r and returns its id.
func (s *Store) SaveRun(ctx context.Context, r Record) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (n, f, alpha, tle_ms, seed, decided, value, agreement,
		                  latency_ns, decisions, messages, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.N, r.F, r.Alpha, r.Tle.Milliseconds(), r.Seed, r.Decided, int(r.Value), r.Agreement,
		int64(r.Latency), r.Decisions, r.Messages, r.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: save run: %w", err)
	}
	return res.LastInsertId()
}

// Runs returns every stored run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, n, f, alpha, tle_ms, seed, decided, value, agreement,
		       latency_ns, decisions, messages, created_at
		FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var tle, latency, created int64
		var value int
		if err := rows.Scan(&r.ID, &r.N, &r.F, &r.Alpha, &tle, &r.Seed, &r.Decided, &value,
			&r.Agreement, &latency, &r.Decisions, &r.Messages, &created); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Tle = time.Duration(tle) * time.Millisecond
		r.Value = synod.Value(value)
		r.Latency = time.Duration(latency)
		r.CreatedAt = time.Unix(0, created)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns one row per configuration, ordered by N, f, alpha, tle.
func (s *Store) Summary(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n, f, alpha, tle_ms, COUNT(*), SUM(decided),
		       AVG(CASE WHEN decided THEN latency_ns END)
		FROM runs
		GROUP BY n, f, alpha, tle_ms
		ORDER BY n, f, alpha, tle_ms`)
	if err != nil {
		return nil, fmt.Errorf("store: summarise runs: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var tle int64
		var mean sql.NullFloat64
		if err := rows.Scan(&sum.N, &sum.F, &sum.Alpha, &tle, &sum.Runs, &sum.Decided, &mean); err != nil {
			return nil, fmt.Errorf("store: scan summary: %w", err)
		}
		sum.Tle = time.Duration(tle) * time.Millisecond
		if mean.Valid {
			sum.MeanLatency = time.Duration(mean.Float64)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
