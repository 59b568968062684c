package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	report_path TEXT NOT NULL,
	line_count INTEGER NOT NULL,
	alerting INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	run_id TEXT NOT NULL REFERENCES runs(id),
	logged_at TEXT NOT NULL,
	pattern TEXT NOT NULL,
	line TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_alerts_run_id ON alerts(run_id);
`

// timeLayout has fixed-width fractions so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store records runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens (creating if needed) the database at path and initializes the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db}
	if err := s.InitializeSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitializeSchema creates the tables and indexes if they do not exist.
func (s *Store) InitializeSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts the run and its alerts in one transaction.
func (s *Store) RecordRun(ctx context.Context, run model.Run) error {
	if run.ID == "" {
		return fmt.Errorf("record run: empty id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, report_path, line_count, alerting) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), run.ReportPath, run.LineCount, boolToInt(run.Alerting))
	if err != nil {
		return fmt.Errorf("record run: insert run: %w", err)
	}
	for _, a := range run.Alerts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO alerts (run_id, logged_at, pattern, line) VALUES (?, ?, ?, ?)`,
			run.ID, a.Timestamp.UTC().Format(timeLayout), a.Pattern, string(a.Line))
		if err != nil {
			return fmt.Errorf("record run: insert alert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

// LastRuns returns up to n runs, newest first, with their alerts.
func (s *Store) LastRuns(ctx context.Context, n int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, report_path, line_count, alerting FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			r        model.Run
			started  string
			alerting int
		)
		if err := rows.Scan(&r.ID, &started, &r.ReportPath, &r.LineCount, &alerting); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		r.Alerting = alerting != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		alerts, err := s.alerts(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Alerts = alerts
	}
	return runs, nil
}

func (s *Store) alerts(ctx context.Context, runID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT logged_at, pattern, line FROM alerts WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var (
			a        model.Alert
			loggedAt string
			line     string
		)
		if err := rows.Scan(&loggedAt, &a.Pattern, &line); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.Timestamp, err = time.Parse(timeLayout, loggedAt); err != nil {
			return nil, fmt.Errorf("parse logged_at %q: %w", loggedAt, err)
		}
		a.Line = model.LogLine(line)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
