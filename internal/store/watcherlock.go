package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AcquireWatcherLock tries to claim the single-writer slot for a project.
// If a lock row already exists and its PID is no longer alive (per
// isAlive), the stale row is reclaimed; otherwise acquisition fails and
// false is returned without error.
func (s *SQLiteStore) AcquireWatcherLock(ctx context.Context, l *WatcherLock, isAlive func(pid int) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning acquire-lock tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingPID int
	err = tx.QueryRowContext(ctx, `SELECT pid FROM watcher_locks WHERE project_hash = ?`, l.ProjectHash).Scan(&existingPID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no lock held, fall through to insert
	case err != nil:
		return false, fmt.Errorf("checking existing lock: %w", err)
	default:
		if isAlive(existingPID) {
			return false, nil
		}
		// stale: the holder's process is gone, reclaim below
	}

	now := formatTime(time.Now())
	if l.StartedAt.IsZero() {
		l.StartedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watcher_locks (project_hash, pid, project_path, started_at, last_activity, indexed_files)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_hash) DO UPDATE SET
			pid = excluded.pid, project_path = excluded.project_path,
			started_at = excluded.started_at, last_activity = excluded.last_activity,
			indexed_files = excluded.indexed_files
	`, l.ProjectHash, l.PID, l.ProjectPath, formatTime(l.StartedAt), now, l.IndexedFiles); err != nil {
		return false, fmt.Errorf("inserting watcher lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing acquire-lock tx: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ReleaseWatcherLock(ctx context.Context, projectHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM watcher_locks WHERE project_hash = ?`, projectHash)
	if err != nil {
		return fmt.Errorf("releasing watcher lock: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TouchWatcherLock(ctx context.Context, projectHash string, indexedFiles int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE watcher_locks SET last_activity = ?, indexed_files = ? WHERE project_hash = ?`,
		formatTime(time.Now()), indexedFiles, projectHash,
	)
	if err != nil {
		return fmt.Errorf("touching watcher lock: %w", err)
	}
	return nil
}

// ListWatcherLocks returns live locks, silently dropping (not deleting) any
// whose holder process is no longer alive; callers that want to reap a
// stale lock should call AcquireWatcherLock for it.
func (s *SQLiteStore) ListWatcherLocks(ctx context.Context, isAlive func(pid int) bool) ([]*WatcherLock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_hash, pid, project_path, started_at, last_activity, indexed_files FROM watcher_locks
	`)
	if err != nil {
		return nil, fmt.Errorf("listing watcher locks: %w", err)
	}
	defer rows.Close()

	var out []*WatcherLock
	for rows.Next() {
		var l WatcherLock
		var startedAt, lastActivity string
		if err := rows.Scan(&l.ProjectHash, &l.PID, &l.ProjectPath, &startedAt, &lastActivity, &l.IndexedFiles); err != nil {
			return nil, fmt.Errorf("scanning watcher lock: %w", err)
		}
		if isAlive != nil && !isAlive(l.PID) {
			continue
		}
		l.StartedAt = parseTime(startedAt)
		l.LastActivity = parseTime(lastActivity)
		out = append(out, &l)
	}
	return out, rows.Err()
}
