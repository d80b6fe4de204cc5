package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StartSession ends any currently-active session for the project (spec.md
// §9 open question: accepted behavior, races across processes are not
// corrected) and inserts the new one.
func (s *SQLiteStore) StartSession(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE project_id = ? AND ended_at IS NULL`,
		now, sess.ProjectID,
	); err != nil {
		return fmt.Errorf("ending prior sessions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, started_at, ended_at, summary, context)
		VALUES (?, ?, ?, NULL, NULL, ?)
	`, sess.ID, sess.ProjectID, formatTime(sess.StartedAt), nonEmpty(sess.Context, "{}")); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	return tx.Commit()
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (s *SQLiteStore) EndSession(ctx context.Context, id string, endedAt time.Time, summary *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, summary = COALESCE(?, summary) WHERE id = ?`,
		formatTime(endedAt), summary, id,
	)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetActiveSession(ctx context.Context, projectID string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, started_at, ended_at, summary, context
		FROM sessions WHERE project_id = ? AND ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1
	`, projectID))
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, started_at, ended_at, summary, context FROM sessions WHERE id = ?
	`, id))
}

func (s *SQLiteStore) scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var started string
	var ended, summary sql.NullString
	if err := row.Scan(&sess.ID, &sess.ProjectID, &started, &ended, &summary, &sess.Context); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	sess.StartedAt = parseTime(started)
	sess.EndedAt = parseTimePtr(nullableTimeToPtr(ended))
	if summary.Valid {
		sess.Summary = &summary.String
	}
	return &sess, nil
}
