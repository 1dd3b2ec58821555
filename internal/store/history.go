// Package store persists pipeline run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"pycicd/internal/logging"
)

// Step statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// StepRecord is the outcome of one pipeline step.
type StepRecord struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// CommandRecord is one subprocess run during a pipeline.
type CommandRecord struct {
	Command  string        `json:"command"`
	Stage    string        `json:"stage,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// RunRecord is one pipeline run.
type RunRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Branch     string          `json:"branch,omitempty"`
	Version    string          `json:"version,omitempty"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Steps      []StepRecord    `json:"steps"`
	Commands   []CommandRecord `json:"commands,omitempty"`
}

// History is the run history database.
type History struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open opens or creates the history database at path.
func Open(path string) (*History, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	h := &History{db: db, dbPath: path}
	if err := h.initializeSchema(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.StoreDebug("History database ready at %s", path)
	return h, nil
}

func (h *History) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		branch TEXT,
		version TEXT,
		status TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT,
		PRIMARY KEY(run_id, position)
	);

	CREATE TABLE IF NOT EXISTS commands (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		command TEXT NOT NULL,
		stage TEXT,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY(run_id, position)
	);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Path returns the database path.
func (h *History) Path() string {
	return h.dbPath
}

// RecordRun stores rec with its steps and commands in one transaction.
func (h *History) RecordRun(ctx context.Context, rec RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, branch, version, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.Branch, rec.Version, rec.Status, rec.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, s := range rec.Steps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO steps (run_id, position, name, status, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, s.Name, s.Status, s.Duration.Milliseconds(), s.Error)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", s.Name, err)
		}
	}

	for i, c := range rec.Commands {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO commands (run_id, position, command, stage, exit_code, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, c.Command, c.Stage, c.ExitCode, c.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert command: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	logging.StoreDebug("Recorded run %s (%d steps, %d commands)", rec.ID, len(rec.Steps), len(rec.Commands))
	return nil
}

// RecentRuns returns up to limit runs, newest first, with their steps.
// Commands are loaded only by GetRun.
func (h *History) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, branch, version, status, error FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		steps, err := h.steps(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Steps = steps
	}
	return runs, nil
}

// GetRun loads one run with steps and commands. A missing run is (nil, nil).
func (h *History) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	row := h.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, branch, version, status, error FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if rec.Steps, err = h.steps(ctx, id); err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT command, stage, exit_code, duration_ms FROM commands WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c CommandRecord
		var stage sql.NullString
		var ms int64
		if err := rows.Scan(&c.Command, &stage, &c.ExitCode, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		c.Stage = stage.String
		c.Duration = time.Duration(ms) * time.Millisecond
		rec.Commands = append(rec.Commands, c)
	}
	return &rec, rows.Err()
}

func (h *History) steps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT name, status, duration_ms, error FROM steps WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var s StepRecord
		var msg sql.NullString
		var ms int64
		if err := rows.Scan(&s.Name, &s.Status, &ms, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		s.Error = msg.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var started, finished int64
	var branch, version, msg sql.NullString
	if err := row.Scan(&rec.ID, &started, &finished, &branch, &version, &rec.Status, &msg); err != nil {
		if err == sql.ErrNoRows {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan run: %w", err)
	}
	rec.StartedAt = time.UnixMilli(started)
	rec.FinishedAt = time.UnixMilli(finished)
	rec.Branch = branch.String
	rec.Version = version.String
	rec.Error = msg.String
	return rec, nil
}

// Prune deletes all but the newest keep runs.
func (h *History) Prune(ctx context.Context, keep int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := h.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Close()
}
