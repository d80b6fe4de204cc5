package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced row does not exist.
var ErrNotFound = errors.New("not found")

func (s *SQLiteStore) UpsertProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, path, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
	`, p.ID, p.Path, p.Name, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx,
		`SELECT id, path, name, created_at, updated_at FROM projects WHERE id = ?`, id))
}

func (s *SQLiteStore) GetProjectByPath(ctx context.Context, path string) (*Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx,
		`SELECT id, path, name, created_at, updated_at FROM projects WHERE path = ?`, path))
}

func (s *SQLiteStore) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Path, &p.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
