package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *SQLiteStore) CreateRelationship(ctx context.Context, r *MemoryRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.ValidFrom == nil {
		now := r.CreatedAt
		r.ValidFrom = &now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_relationships (
			id, source_memory_id, target_memory_id, relationship_type, confidence,
			extracted_by, created_at, valid_from, valid_until
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.SourceMemoryID, r.TargetMemoryID, string(r.RelationshipType), r.Confidence,
		string(r.ExtractedBy), formatTime(r.CreatedAt), formatTimePtr(r.ValidFrom), formatTimePtr(r.ValidUntil),
	)
	if err != nil {
		return fmt.Errorf("inserting relationship: %w", err)
	}
	return nil
}

// SetValidUntil closes a memory's validity window, used by supersede to
// expire the old memory at the moment the new one is linked.
func (s *SQLiteStore) SetValidUntil(ctx context.Context, memoryID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET valid_until = ? WHERE id = ? AND valid_until IS NULL`,
		formatTime(until), memoryID,
	)
	if err != nil {
		return fmt.Errorf("setting valid_until: %w", err)
	}
	return checkAffected(res)
}

// GetSuperseding returns the newest memory whose SUPERSEDES edge targets
// memoryID and which is itself neither expired nor soft-deleted.
func (s *SQLiteStore) GetSuperseding(ctx context.Context, memoryID string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memorySelectCols+` FROM memories
		WHERE is_deleted = 0 AND id = (
			SELECT r.source_memory_id FROM memory_relationships r
			WHERE r.target_memory_id = ? AND r.relationship_type = 'SUPERSEDES'
			  AND (r.valid_until IS NULL OR r.valid_until > ?)
			ORDER BY r.created_at DESC LIMIT 1
		)
	`, memoryID, formatTime(time.Now()))
	return s.scanMemory(row)
}

// GetSupersedingMap is the batch form of GetSuperseding: one query for a
// whole result page instead of one per memory. Memories with no active
// superseding edge are simply absent from the returned map.
func (s *SQLiteStore) GetSupersedingMap(ctx context.Context, memoryIDs []string) (map[string]*Memory, error) {
	out := make(map[string]*Memory, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memoryIDs)), ",")
	args := make([]any, 0, len(memoryIDs)+1)
	now := formatTime(time.Now())
	for _, id := range memoryIDs {
		args = append(args, id)
	}
	args = append(args, now)

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.target_memory_id, `+indirectMemoryCols()+`
		FROM memory_relationships r
		JOIN memories m ON m.id = r.source_memory_id
		WHERE r.target_memory_id IN (`+placeholders+`)
		  AND r.relationship_type = 'SUPERSEDES'
		  AND (r.valid_until IS NULL OR r.valid_until > ?)
		  AND m.is_deleted = 0
		ORDER BY r.created_at DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying superseding map: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var targetID string
		var m Memory
		var summary, memType, validFrom, validUntil, deletedAt sql.NullString
		var createdAt, updatedAt, lastAccessed, tags, concepts, files, categories string
		var isDeleted int

		if err := rows.Scan(
			&targetID,
			&m.ID, &m.ProjectID, &m.Content, &summary, &m.ContentHash, &m.Sector, &m.Tier, &m.Importance,
			&m.SimHash, &m.Salience, &m.AccessCount, &createdAt, &updatedAt, &lastAccessed,
			&validFrom, &validUntil, &isDeleted, &deletedAt, &tags, &concepts, &files, &categories, &memType,
		); err != nil {
			return nil, fmt.Errorf("scanning superseding row: %w", err)
		}
		if _, exists := out[targetID]; exists {
			continue // keep the most recently created superseding memory
		}

		if summary.Valid {
			m.Summary = &summary.String
		}
		if memType.Valid {
			mt := MemoryType(memType.String)
			m.MemoryType = &mt
		}
		m.CreatedAt = parseTime(createdAt)
		m.UpdatedAt = parseTime(updatedAt)
		m.LastAccessed = parseTime(lastAccessed)
		m.ValidFrom = parseTimePtr(nullableTimeToPtr(validFrom))
		m.ValidUntil = parseTimePtr(nullableTimeToPtr(validUntil))
		m.IsDeleted = isDeleted != 0
		m.DeletedAt = parseTimePtr(nullableTimeToPtr(deletedAt))
		m.Tags = unmarshalStrings(tags)
		m.Concepts = unmarshalStrings(concepts)
		m.Files = unmarshalStrings(files)
		m.Categories = unmarshalStrings(categories)
		out[targetID] = &m
	}
	return out, rows.Err()
}

// GetSupersededBy returns the id of the memory that memoryID supersedes,
// if any, for reporting which memory a new write replaced.
func (s *SQLiteStore) GetSupersededBy(ctx context.Context, memoryID string) (string, bool, error) {
	var targetID string
	err := s.db.QueryRowContext(ctx, `
		SELECT target_memory_id FROM memory_relationships
		WHERE source_memory_id = ? AND relationship_type = 'SUPERSEDES'
		ORDER BY created_at DESC LIMIT 1
	`, memoryID).Scan(&targetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("querying superseded-by: %w", err)
	}
	return targetID, true, nil
}

// CountRelated counts edges touching memoryID in either direction,
// excluding expired ones.
func (s *SQLiteStore) CountRelated(ctx context.Context, memoryID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_relationships
		WHERE (source_memory_id = ? OR target_memory_id = ?)
		  AND (valid_until IS NULL OR valid_until > ?)
	`, memoryID, memoryID, formatTime(time.Now())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting related: %w", err)
	}
	return n, nil
}

// CountRelatedBatch is the batch form of CountRelated: one query for a whole
// result page instead of one per memory. Memories with zero related edges
// are simply absent from the returned map.
func (s *SQLiteStore) CountRelatedBatch(ctx context.Context, memoryIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memoryIDs)), ",")
	now := formatTime(time.Now())

	args := make([]any, 0, len(memoryIDs)*2+2)
	for _, id := range memoryIDs {
		args = append(args, id)
	}
	args = append(args, now)
	for _, id := range memoryIDs {
		args = append(args, id)
	}
	args = append(args, now)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COUNT(*) FROM (
			SELECT source_memory_id AS id FROM memory_relationships
			WHERE source_memory_id IN (`+placeholders+`) AND (valid_until IS NULL OR valid_until > ?)
			UNION ALL
			SELECT target_memory_id AS id FROM memory_relationships
			WHERE target_memory_id IN (`+placeholders+`) AND (valid_until IS NULL OR valid_until > ?)
		)
		GROUP BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("counting related batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning related count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}
