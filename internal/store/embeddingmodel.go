package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RegisterEmbeddingModel upserts the model and, when IsActive is set,
// deactivates every other model first so at most one is ever active.
func (s *SQLiteStore) RegisterEmbeddingModel(ctx context.Context, m *EmbeddingModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning register-model tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if m.IsActive {
		if _, err := tx.ExecContext(ctx, `UPDATE embedding_models SET is_active = 0`); err != nil {
			return err
		}
	}

	active := 0
	if m.IsActive {
		active = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO embedding_models (id, provider, name, dimensions, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET provider = excluded.provider, name = excluded.name,
			dimensions = excluded.dimensions, is_active = excluded.is_active
	`, m.ID, m.Provider, m.Name, m.Dimensions, active); err != nil {
		return fmt.Errorf("registering embedding model: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetActiveEmbeddingModel(ctx context.Context) (*EmbeddingModel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider, name, dimensions, is_active FROM embedding_models WHERE is_active = 1 LIMIT 1
	`)

	var m EmbeddingModel
	var active int
	if err := row.Scan(&m.ID, &m.Provider, &m.Name, &m.Dimensions, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning active embedding model: %w", err)
	}
	m.IsActive = active != 0
	return &m, nil
}
