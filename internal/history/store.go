package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded pipeline run.
type Run struct {
	RunID      string
	Branch     string
	Commit     string
	Outcome    string
	Error      string
	Documents  int
	Pages      int
	Published  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store persists run history in SQLite. The daemon uses it for status
// reporting and to skip rebuilds of a commit that already published
// successfully.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a run-history store at dbPath.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		branch TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		documents INTEGER NOT NULL DEFAULT 0,
		pages INTEGER NOT NULL DEFAULT 0,
		published INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_commit ON runs(commit_hash);
	CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends a finished run.
func (s *Store) Record(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	published := 0
	if run.Published {
		published = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, branch, commit_hash, outcome, error, documents, pages, published, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Branch, run.Commit, run.Outcome, run.Error,
		run.Documents, run.Pages, published,
		run.StartedAt.Unix(), run.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, branch, commit_hash, outcome, error, documents, pages, published, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return s.scanRuns(rows)
}

// LastPublishedCommit returns the commit hash of the most recent run that
// published successfully, or "" when no run has published yet.
func (s *Store) LastPublishedCommit(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var commit string
	err := s.db.QueryRowContext(ctx,
		`SELECT commit_hash FROM runs WHERE published = 1 AND commit_hash != '' ORDER BY id DESC LIMIT 1`,
	).Scan(&commit)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last published commit: %w", err)
	}
	return commit, nil
}

// Prune deletes runs that finished before the cutoff and returns the number
// of rows removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var r Run
		var published int
		var started, finished int64

		err := rows.Scan(&r.RunID, &r.Branch, &r.Commit, &r.Outcome, &r.Error,
			&r.Documents, &r.Pages, &published, &started, &finished)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.Published = published != 0
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
