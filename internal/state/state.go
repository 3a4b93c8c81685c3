// Package state persists run history to a local sqlite database so past
// runs can be inspected after workspaces are cleaned up.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nlavee/auto-candidate/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	workspace    TEXT NOT NULL,
	repo         TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP,
	phase        INTEGER NOT NULL DEFAULT 0,
	tests_passed INTEGER
);

CREATE TABLE IF NOT EXISTS task_results (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	task_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	branch        TEXT,
	files_changed INTEGER NOT NULL DEFAULT 0,
	error         TEXT,
	PRIMARY KEY (run_id, task_id)
);
`

// Run is one pipeline run as recorded in history.
type Run struct {
	ID          string
	Workspace   string
	Repo        string
	Provider    string
	Model       string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Phase       int
	TestsPassed *bool
}

// Store is the run-history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring state db: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun records the start of a run and returns its id.
func (s *Store) BeginRun(workspace, repo, provider, model string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, workspace, repo, provider, model, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, workspace, repo, provider, model, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// RecordPhase updates the highest phase a run reached.
func (s *Store) RecordPhase(runID string, phase int) error {
	_, err := s.db.Exec(`UPDATE runs SET phase = MAX(phase, ?) WHERE id = ?`, phase, runID)
	if err != nil {
		return fmt.Errorf("recording phase: %w", err)
	}
	return nil
}

// RecordResults upserts task results for a run.
func (s *Store) RecordResults(runID string, results []models.TaskResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("recording results: %w", err)
	}
	defer tx.Rollback()

	for _, r := range results {
		_, err := tx.Exec(
			`INSERT INTO task_results (run_id, task_id, status, branch, files_changed, error)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, task_id) DO UPDATE SET
			   status = excluded.status,
			   branch = excluded.branch,
			   files_changed = excluded.files_changed,
			   error = excluded.error`,
			runID, r.ID, string(r.Status), r.Branch, r.FilesChanged, r.Error,
		)
		if err != nil {
			return fmt.Errorf("recording result %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// FinishRun records the end of a run and its verification outcome.
func (s *Store) FinishRun(runID string, testsPassed bool) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, tests_passed = ? WHERE id = ?`,
		time.Now().UTC(), testsPassed, runID,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, workspace, repo, provider, model, started_at, finished_at, phase, tests_passed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Workspace, &r.Repo, &r.Provider, &r.Model,
			&r.StartedAt, &r.FinishedAt, &r.Phase, &r.TestsPassed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ResultsForRun returns the task results recorded for a run, ordered by
// task id.
func (s *Store) ResultsForRun(runID string) ([]models.TaskResult, error) {
	rows, err := s.db.Query(
		`SELECT task_id, status, branch, files_changed, error
		 FROM task_results WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var results []models.TaskResult
	for rows.Next() {
		var r models.TaskResult
		var status string
		var branch, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &status, &branch, &r.FilesChanged, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Status = models.ResultStatus(status)
		r.Branch = branch.String
		r.Error = errMsg.String
		r.Completed = true
		results = append(results, r)
	}
	return results, rows.Err()
}
