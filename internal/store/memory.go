package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *SQLiteStore) CreateMemory(ctx context.Context, m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Salience == 0 {
		m.Salience = SalienceCeil
	}
	var memType any
	if m.MemoryType != nil {
		memType = string(*m.MemoryType)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, project_id, content, summary, content_hash, sector, tier, importance,
			simhash, salience, access_count, created_at, updated_at, last_accessed,
			valid_from, valid_until, is_deleted, deleted_at, tags, concepts, files, categories, memory_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?, ?, ?, ?)
	`,
		m.ID, m.ProjectID, m.Content, m.Summary, m.ContentHash, string(m.Sector), string(m.Tier), m.Importance,
		m.SimHash, m.Salience, m.AccessCount, formatTime(m.CreatedAt), formatTime(m.UpdatedAt), formatTime(m.LastAccessed),
		formatTimePtr(m.ValidFrom), formatTimePtr(m.ValidUntil),
		marshalStrings(m.Tags), marshalStrings(m.Concepts), marshalStrings(m.Files), marshalStrings(m.Categories), memType,
	)
	if err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

const memorySelectCols = `
	id, project_id, content, summary, content_hash, sector, tier, importance,
	simhash, salience, access_count, created_at, updated_at, last_accessed,
	valid_from, valid_until, is_deleted, deleted_at, tags, concepts, files, categories, memory_type
`

func (s *SQLiteStore) scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var summary, memType, validFrom, validUntil, deletedAt sql.NullString
	var createdAt, updatedAt, lastAccessed, tags, concepts, files, categories string
	var isDeleted int

	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Content, &summary, &m.ContentHash, &m.Sector, &m.Tier, &m.Importance,
		&m.SimHash, &m.Salience, &m.AccessCount, &createdAt, &updatedAt, &lastAccessed,
		&validFrom, &validUntil, &isDeleted, &deletedAt, &tags, &concepts, &files, &categories, &memType,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning memory: %w", err)
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
	return &m, nil
}

// GetMemory returns the memory regardless of soft-delete state, so callers
// can distinguish "never existed" from "soft-deleted" (spec.md §8).
func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*Memory, error) {
	return s.scanMemory(s.db.QueryRowContext(ctx,
		`SELECT `+memorySelectCols+` FROM memories WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdateMemory(ctx context.Context, m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var memType any
	if m.MemoryType != nil {
		memType = string(*m.MemoryType)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, summary = ?, content_hash = ?, sector = ?, tier = ?, importance = ?,
			simhash = ?, salience = ?, access_count = ?, updated_at = ?, last_accessed = ?,
			valid_from = ?, valid_until = ?, tags = ?, concepts = ?, files = ?, categories = ?, memory_type = ?
		WHERE id = ?
	`,
		m.Content, m.Summary, m.ContentHash, string(m.Sector), string(m.Tier), m.Importance,
		m.SimHash, m.Salience, m.AccessCount, formatTime(time.Now()), formatTime(m.LastAccessed),
		formatTimePtr(m.ValidFrom), formatTimePtr(m.ValidUntil),
		marshalStrings(m.Tags), marshalStrings(m.Concepts), marshalStrings(m.Files), marshalStrings(m.Categories), memType,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating memory: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteMemory(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET is_deleted = 1, deleted_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("soft deleting memory: %w", err)
	}
	return checkAffected(res)
}

func (s *SQLiteStore) RestoreMemory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET is_deleted = 0, deleted_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("restoring memory: %w", err)
	}
	return checkAffected(res)
}

// HardDeleteMemory removes the memory row and cascades to its edges and
// vector.
func (s *SQLiteStore) HardDeleteMemory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning hard delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DELETE FROM memory_vectors WHERE memory_id = ?`,
		`DELETE FROM session_memories WHERE memory_id = ?`,
		`DELETE FROM memory_relationships WHERE source_memory_id = ? OR target_memory_id = ?`,
	}
	if _, err := tx.ExecContext(ctx, stmts[0], id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmts[1], id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmts[2], id, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return err
	}

	s.vectors.delete(memoryVectorKind, id)
	return tx.Commit()
}

// ListMemories excludes soft-deleted rows by default (spec.md §8 "list with
// default options must not include soft-deleted memories").
func (s *SQLiteStore) ListMemories(ctx context.Context, f MemoryListFilter) ([]*Memory, error) {
	query := `SELECT ` + memorySelectCols + ` FROM memories WHERE project_id = ?`
	args := []any{f.ProjectID}

	if !f.IncludeDeleted {
		query += ` AND is_deleted = 0`
	}
	if f.Sector != "" {
		query += ` AND sector = ?`
		args = append(args, string(f.Sector))
	}
	if f.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(f.Tier))
	}
	if f.MemoryType != "" {
		query += ` AND memory_type = ?`
		args = append(args, string(f.MemoryType))
	}
	if f.MinSalience > 0 {
		query += ` AND salience >= ?`
		args = append(args, f.MinSalience)
	}

	order := "updated_at DESC"
	switch f.OrderBy {
	case "created_at":
		order = "created_at DESC"
	case "salience":
		order = "salience DESC"
	}
	query += " ORDER BY " + order

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	return s.scanMemoryRows(rows)
}

// FindDuplicateCandidates returns non-deleted memories with a non-null
// simhash, newest first, for the create algorithm's duplicate scan.
func (s *SQLiteStore) FindDuplicateCandidates(ctx context.Context, projectID string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memorySelectCols+` FROM memories
		WHERE project_id = ? AND is_deleted = 0 AND simhash IS NOT NULL AND simhash != ''
		ORDER BY created_at DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying duplicate candidates: %w", err)
	}
	defer rows.Close()
	return s.scanMemoryRows(rows)
}

func (s *SQLiteStore) scanMemoryRows(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		var m Memory
		var summary, memType, validFrom, validUntil, deletedAt sql.NullString
		var createdAt, updatedAt, lastAccessed, tags, concepts, files, categories string
		var isDeleted int

		if err := rows.Scan(
			&m.ID, &m.ProjectID, &m.Content, &summary, &m.ContentHash, &m.Sector, &m.Tier, &m.Importance,
			&m.SimHash, &m.Salience, &m.AccessCount, &createdAt, &updatedAt, &lastAccessed,
			&validFrom, &validUntil, &isDeleted, &deletedAt, &tags, &concepts, &files, &categories, &memType,
		); err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
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
		out = append(out, &m)
	}
	return out, rows.Err()
}

// LinkMemoryToSession is an idempotent insert: a duplicate (session,
// memory, usage_type) key is silently ignored (spec.md §7 storage
// constraint-violation policy for idempotent inserts).
func (s *SQLiteStore) LinkMemoryToSession(ctx context.Context, sm *SessionMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_memories (session_id, memory_id, usage_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, memory_id, usage_type) DO NOTHING
	`, sm.SessionID, sm.MemoryID, string(sm.UsageType), formatTime(sm.CreatedAt))
	if err != nil {
		return fmt.Errorf("linking memory to session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMemoriesBySession(ctx context.Context, sessionID string) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+indirectMemoryCols()+`
		FROM memories m
		JOIN session_memories sm ON sm.memory_id = m.id
		WHERE sm.session_id = ? AND m.is_deleted = 0
		ORDER BY sm.created_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session memories: %w", err)
	}
	defer rows.Close()
	return s.scanMemoryRows(rows)
}

func indirectMemoryCols() string {
	cols := memorySelectCols
	fields := strings.Split(strings.TrimSpace(cols), ",")
	for i, f := range fields {
		fields[i] = "m." + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}

// GetSourceSession returns the first session that created the memory, used
// by search's per-result source-session batch fetch.
func (s *SQLiteStore) GetSourceSession(ctx context.Context, memoryID string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT s.id, s.project_id, s.started_at, s.ended_at, s.summary, s.context
		FROM sessions s
		JOIN session_memories sm ON sm.session_id = s.id
		WHERE sm.memory_id = ? AND sm.usage_type = 'created'
		ORDER BY sm.created_at ASC LIMIT 1
	`, memoryID))
}

// GetSourceSessions is the batch form of GetSourceSession: one query for a
// whole result page instead of one per memory. Memories with no creating
// session are simply absent from the returned map.
func (s *SQLiteStore) GetSourceSessions(ctx context.Context, memoryIDs []string) (map[string]*Session, error) {
	out := make(map[string]*Session, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memoryIDs)), ",")
	args := make([]any, len(memoryIDs))
	for i, id := range memoryIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sm.memory_id, s.id, s.project_id, s.started_at, s.ended_at, s.summary, s.context
		FROM session_memories sm
		JOIN sessions s ON s.id = sm.session_id
		WHERE sm.memory_id IN (`+placeholders+`) AND sm.usage_type = 'created'
		ORDER BY sm.created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying source sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memoryID string
		var sess Session
		var started string
		var ended, summary sql.NullString
		if err := rows.Scan(&memoryID, &sess.ID, &sess.ProjectID, &started, &ended, &summary, &sess.Context); err != nil {
			return nil, fmt.Errorf("scanning source session: %w", err)
		}
		if _, exists := out[memoryID]; exists {
			continue // keep the earliest 'created' session per memory
		}
		sess.StartedAt = parseTime(started)
		sess.EndedAt = parseTimePtr(nullableTimeToPtr(ended))
		if summary.Valid {
			sess.Summary = &summary.String
		}
		out[memoryID] = &sess
	}
	return out, rows.Err()
}

// SearchMemoriesFTS returns memory_id -> BM25 score (higher is better) for
// a prefixed-token FTS5 match.
func (s *SQLiteStore) SearchMemoriesFTS(ctx context.Context, projectID, query string, limit int) (map[string]float64, error) {
	ftsQuery := toPrefixQuery(query)
	if ftsQuery == "" {
		return map[string]float64{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, bm25(memories_fts) AS score
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.project_id = ? AND m.is_deleted = 0
		ORDER BY score
		LIMIT ?
	`, ftsQuery, projectID, limit)
	if err != nil {
		if isFTSSyntaxErr(err) {
			return map[string]float64{}, nil
		}
		return nil, fmt.Errorf("searching memories fts: %w", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		out[id] = -score // fts5 bm25() is negative; higher positive = better
	}
	return out, rows.Err()
}

// toPrefixQuery turns free text into an FTS5 MATCH expression where every
// token is prefix-matched (spec.md §4.G: "FTS over memories_fts matching
// prefixed tokens").
func toPrefixQuery(q string) string {
	tokens := strings.Fields(strings.TrimSpace(q))
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ReplaceAll(t, `"`, "")
		if t == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`"%s"*`, t))
	}
	return strings.Join(parts, " ")
}

func isFTSSyntaxErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}
