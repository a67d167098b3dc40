package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		command     TEXT NOT NULL,
		args        TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		run_id    TEXT NOT NULL REFERENCES runs(id),
		path      TEXT NOT NULL,
		kind      TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		col_count INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// Store persists runs in a SQL database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Open connects with driver ("sqlite3" or "pgx") and dsn.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q (want %s or %s)", driver, DriverSQLite, DriverPostgres)
	}
	if dsn == "" {
		return nil, errors.New("ledger dsn is empty")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return New(db), nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate ledger: %w", err)
		}
	}
	return nil
}

// Start records a new running run.
func (s *Store) Start(ctx context.Context, command string, args []string) (*Run, error) {
	if args == nil {
		args = []string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	run := &Run{
		ID:        uuid.New(),
		Command:   command,
		Args:      args,
		Status:    StatusRunning,
		StartedAt: s.now(),
	}
	query := `
		INSERT INTO runs (id, command, args, status, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		run.ID.String(), run.Command, string(argsJSON), string(run.Status), "", run.StartedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// AddArtifact records a file written by a run.
func (s *Store) AddArtifact(ctx context.Context, a Artifact) error {
	query := `INSERT INTO artifacts (run_id, path, kind, row_count, col_count) VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, a.RunID.String(), a.Path, a.Kind, a.Rows, a.Cols); err != nil {
		return fmt.Errorf("failed to add artifact: %w", err)
	}
	return nil
}

// Finish marks a run succeeded, or failed when runErr is non-nil.
func (s *Store) Finish(ctx context.Context, id uuid.UUID, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	query := `UPDATE runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`
	result, err := s.db.ExecContext(ctx, query, string(status), msg, s.now(), id.String())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, command, args, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			id       string
			argsJSON string
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&id, &run.Command, &argsJSON, &status, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &run.Args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
		run.Status = Status(status)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Artifacts returns the files recorded for a run in insertion order.
func (s *Store) Artifacts(ctx context.Context, runID uuid.UUID) ([]Artifact, error) {
	query := `SELECT path, kind, row_count, col_count FROM artifacts WHERE run_id = $1`
	rows, err := s.db.QueryContext(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a := Artifact{RunID: runID}
		if err := rows.Scan(&a.Path, &a.Kind, &a.Rows, &a.Cols); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
