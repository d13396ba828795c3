// Package ledger tracks every submission and its pipeline status in SQLite.
// It is the keyed replacement for the single "current submission" file: the
// ingestion server uses it to gate concurrent submissions, the pipeline
// updates it as stages progress, and the correlator can consult it when the
// results log has nothing yet.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no submission exists for the given ID.
var ErrNotFound = errors.New("ledger: submission not found")

// ErrInFlight is returned by Create when another submission is still being
// processed and the store is configured to reject concurrent runs.
var ErrInFlight = errors.New("ledger: a submission is already in flight")

// ErrDuplicate is returned by Create when a submission with the same ID
// already exists. IDs have one-second resolution, so a same-named re-upload
// within the same second collides.
var ErrDuplicate = errors.New("ledger: submission already exists")

// Store manages submission persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One connection only: Create's in-flight check and insert must be
	// atomic across goroutines, and a second pooled connection would run the
	// check on its own snapshot and hit SQLITE_BUSY on the insert instead of
	// seeing the first row. Cross-process exclusivity comes from the daemon
	// lock, so a single connection costs nothing here.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS submissions (
    id            TEXT PRIMARY KEY,
    source_name   TEXT NOT NULL,
    raw_path      TEXT NOT NULL,
    size_bytes    INTEGER NOT NULL,
    status        TEXT NOT NULL,
    run_id        TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Create inserts a new pending submission. When rejectInFlight is set and
// another submission is still pending or processing, it fails with
// ErrInFlight instead; this is the single-slot race gate.
func (s *Store) Create(ctx context.Context, sub Submission, rejectInFlight bool) (*Submission, error) {
	if sub.ID == "" {
		return nil, errors.New("ledger: submission needs an ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if rejectInFlight {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM submissions WHERE status IN (?, ?)`,
			StatusPending, StatusProcessing,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("count in-flight: %w", err)
		}
		if n > 0 {
			return nil, ErrInFlight
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, source_name, raw_path, size_bytes, status, run_id, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		sub.ID, sub.SourceName, sub.RawPath, sub.SizeBytes, StatusPending, sub.RunID, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, sub.ID)
		}
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, sub.ID)
}

const submissionColumns = `id, source_name, raw_path, size_bytes, status, run_id, error_message, created_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (*Submission, error) {
	var sub Submission
	err := row.Scan(
		&sub.ID, &sub.SourceName, &sub.RawPath, &sub.SizeBytes,
		&sub.Status, &sub.RunID, &sub.ErrorMessage, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByID fetches a submission by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// List returns submissions newest first.
func (s *Store) List(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// InFlight returns the submission currently occupying the pipeline, or nil.
func (s *Store) InFlight(ctx context.Context) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
         WHERE status IN (?, ?) ORDER BY created_at ASC LIMIT 1`,
		StatusPending, StatusProcessing)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query in-flight: %w", err)
	}
	return sub, nil
}

// SetStatus moves a submission through its lifecycle, enforcing the allowed
// transitions.
func (s *Store) SetStatus(ctx context.Context, id string, to Status) error {
	if _, ok := allStatuses[to]; !ok {
		return fmt.Errorf("ledger: unknown status %q", to)
	}

	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !transitionAllowed(sub.Status, to) {
		return fmt.Errorf("ledger: invalid transition %s -> %s for %s", sub.Status, to, id)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, updated_at = ? WHERE id = ?`, to, now, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SetArtifact records where the raw upload landed once it is on disk. The
// row is created before the artifact is written so a rejected submission
// never leaves files behind.
func (s *Store) SetArtifact(ctx context.Context, id, rawPath string, size int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET raw_path = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		rawPath, size, now, id)
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SetRunID records the scheduler run handle for a submission.
func (s *Store) SetRunID(ctx context.Context, id, runID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET run_id = ?, updated_at = ? WHERE id = ?`, runID, now, id)
	if err != nil {
		return fmt.Errorf("update run id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// MarkFailed moves the submission to failed and records the reason.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !transitionAllowed(sub.Status, StatusFailed) {
		return fmt.Errorf("ledger: invalid transition %s -> %s for %s", sub.Status, StatusFailed, id)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, reason, now, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
