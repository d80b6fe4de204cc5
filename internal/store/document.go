package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *SQLiteStore) UpsertDocument(ctx context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	isCode := 0
	if d.IsCode {
		isCode = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, project_id, path, language, line_count, checksum, is_code, full_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			language = excluded.language, line_count = excluded.line_count, checksum = excluded.checksum,
			is_code = excluded.is_code, full_content = excluded.full_content, updated_at = excluded.updated_at
	`, d.ID, d.ProjectID, d.Path, d.Language, d.LineCount, d.Checksum, isCode, d.FullContent,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	if s.docFTS != nil {
		if err := s.docFTS.Index(d.ID, d.ProjectID, d.FullContent); err != nil {
			return fmt.Errorf("indexing document into bleve: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, path, language, line_count, checksum, is_code, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)

	var d Document
	var isCode int
	var createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Path, &d.Language, &d.LineCount, &d.Checksum, &isCode, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	d.IsCode = isCode != 0
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func (s *SQLiteStore) GetDocumentByPath(ctx context.Context, projectID, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, path, language, line_count, checksum, is_code, created_at, updated_at
		FROM documents WHERE project_id = ? AND path = ?
	`, projectID, path)

	var d Document
	var isCode int
	var createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Path, &d.Language, &d.LineCount, &d.Checksum, &isCode, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	d.IsCode = isCode != 0
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// DeleteDocument cascades to chunks and their vectors, matching the
// indexing pipeline's file-removal path.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning document delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM document_chunks WHERE document_id = ?`, id)
	if err != nil {
		return err
	}
	var chunkIDs []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			rows.Close()
			return err
		}
		chunkIDs = append(chunkIDs, cid)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_vectors WHERE chunk_id IN (SELECT id FROM document_chunks WHERE document_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}

	for _, cid := range chunkIDs {
		s.vectors.delete(documentVectorKind, cid)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if s.docFTS != nil {
		_ = s.docFTS.Delete(id)
	}
	return nil
}

// ReplaceChunks atomically swaps a document's chunk set, used on every
// re-index of a changed file.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, documentID string, chunks []*DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace-chunks tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_vectors WHERE chunk_id IN (SELECT id FROM document_chunks WHERE document_id = ?)`, documentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (
			id, document_id, chunk_index, content, start_offset, end_offset,
			tokens_estimate, start_line, end_line, chunk_type, symbols
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, documentID, c.ChunkIndex, c.Content, c.StartOffset, c.EndOffset,
			c.TokensEstimate, c.StartLine, c.EndLine, string(c.ChunkType), marshalStrings(c.Symbols),
		); err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, start_offset, end_offset,
		       tokens_estimate, start_line, end_line, chunk_type, symbols
		FROM document_chunks WHERE document_id = ? ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []*DocumentChunk
	for rows.Next() {
		var c DocumentChunk
		var symbols string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.StartOffset, &c.EndOffset,
			&c.TokensEstimate, &c.StartLine, &c.EndLine, &c.ChunkType, &symbols); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Symbols = unmarshalStrings(symbols)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetChunk fetches a single chunk by id, the lookup vector search results
// need since document_vectors keys by chunk id while documents_fts keys by
// document id.
func (s *SQLiteStore) GetChunk(ctx context.Context, chunkID string) (*DocumentChunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, content, start_offset, end_offset,
		       tokens_estimate, start_line, end_line, chunk_type, symbols
		FROM document_chunks WHERE id = ?
	`, chunkID)

	var c DocumentChunk
	var symbols string
	if err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.StartOffset, &c.EndOffset,
		&c.TokensEstimate, &c.StartLine, &c.EndLine, &c.ChunkType, &symbols); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	c.Symbols = unmarshalStrings(symbols)
	return &c, nil
}

func (s *SQLiteStore) UpsertDocumentVector(ctx context.Context, v *DocumentVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	blob, err := encodeVector(v.Vector)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_vectors (chunk_id, model_id, vector, dim, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id, model_id) DO UPDATE SET vector = excluded.vector, dim = excluded.dim
	`, v.ChunkID, v.ModelID, blob, v.Dim, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting document vector: %w", err)
	}

	s.vectors.upsert(documentVectorKind, v.ModelID, v.ChunkID, v.Vector)
	return nil
}

// GetDocumentVectorsByKeys reports, for each chunk id, whether a vector
// already exists under modelID — used by the pipeline's embed-stage skip
// check on unchanged chunks.
func (s *SQLiteStore) GetDocumentVectorsByKeys(ctx context.Context, modelID string, chunkIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, 0, len(chunkIDs)+1)
	args = append(args, modelID)
	for _, id := range chunkIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id FROM document_vectors WHERE model_id = ? AND chunk_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying existing vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// GetDocumentVector fetches one chunk's vector verbatim under modelID, used
// by the pipeline writer to carry an embedding forward across a ReplaceChunks
// call when the parser determined the chunk's content was unchanged.
func (s *SQLiteStore) GetDocumentVector(ctx context.Context, chunkID, modelID string) (*DocumentVector, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, model_id, vector, dim, created_at FROM document_vectors
		WHERE chunk_id = ? AND model_id = ?
	`, chunkID, modelID)

	var v DocumentVector
	var blob []byte
	var createdAt string
	if err := row.Scan(&v.ChunkID, &v.ModelID, &blob, &v.Dim, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning document vector: %w", err)
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, err
	}
	v.Vector = vec
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

func (s *SQLiteStore) SearchDocumentsFTS(ctx context.Context, projectID, query string, limit int) (map[string]float64, error) {
	if s.docFTS != nil {
		return s.docFTS.Search(ctx, projectID, query, limit)
	}

	ftsQuery := toCodeQuery(query)
	if ftsQuery == "" {
		return map[string]float64{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, bm25(documents_fts) AS score
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ? AND d.project_id = ?
		ORDER BY score
		LIMIT ?
	`, ftsQuery, projectID, limit)
	if err != nil {
		if isFTSSyntaxErr(err) {
			return map[string]float64{}, nil
		}
		return nil, fmt.Errorf("searching documents fts: %w", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		out[id] = -score
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchMemoryVectors(ctx context.Context, projectID, modelID string, query []float32, dim, limit int) (map[string]float32, error) {
	ids, err := s.memoryIDsForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.vectors.search(memoryVectorKind, modelID, query, dim, limit, ids), nil
}

func (s *SQLiteStore) SearchDocumentVectors(ctx context.Context, projectID, modelID string, query []float32, dim, limit int) (map[string]float32, error) {
	ids, err := s.chunkIDsForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.vectors.search(documentVectorKind, modelID, query, dim, limit, ids), nil
}

func (s *SQLiteStore) memoryIDsForProject(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM memories WHERE project_id = ? AND is_deleted = 0`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying project memory ids: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *SQLiteStore) chunkIDsForProject(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dc.id FROM document_chunks dc
		JOIN documents d ON d.id = dc.document_id
		WHERE d.project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying project chunk ids: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetIndexedFile(ctx context.Context, projectID, path string) (*IndexedFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, path, checksum, mtime, indexed_at FROM indexed_files
		WHERE project_id = ? AND path = ?
	`, projectID, path)

	var f IndexedFile
	var mtime, indexedAt string
	if err := row.Scan(&f.ProjectID, &f.Path, &f.Checksum, &mtime, &indexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning indexed file: %w", err)
	}
	f.MTime = parseTime(mtime)
	f.IndexedAt = parseTime(indexedAt)
	return &f, nil
}

func (s *SQLiteStore) UpsertIndexedFile(ctx context.Context, f *IndexedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_files (project_id, path, checksum, mtime, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			checksum = excluded.checksum, mtime = excluded.mtime, indexed_at = excluded.indexed_at
	`, f.ProjectID, f.Path, f.Checksum, formatTime(f.MTime), formatTime(f.IndexedAt))
	if err != nil {
		return fmt.Errorf("upserting indexed file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteIndexedFile(ctx context.Context, projectID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_files WHERE project_id = ? AND path = ?`, projectID, path)
	if err != nil {
		return fmt.Errorf("deleting indexed file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCodeIndexState(ctx context.Context, projectID string) (*CodeIndexState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, last_indexed_at, indexed_files, gitignore_hash FROM code_index_state WHERE project_id = ?
	`, projectID)

	var st CodeIndexState
	var lastIndexedAt string
	if err := row.Scan(&st.ProjectID, &lastIndexedAt, &st.IndexedFiles, &st.GitignoreHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning code index state: %w", err)
	}
	st.LastIndexedAt = parseTime(lastIndexedAt)
	return &st, nil
}

func (s *SQLiteStore) UpsertCodeIndexState(ctx context.Context, st *CodeIndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_index_state (project_id, last_indexed_at, indexed_files, gitignore_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			last_indexed_at = excluded.last_indexed_at, indexed_files = excluded.indexed_files,
			gitignore_hash = excluded.gitignore_hash
	`, st.ProjectID, formatTime(st.LastIndexedAt), st.IndexedFiles, st.GitignoreHash)
	if err != nil {
		return fmt.Errorf("upserting code index state: %w", err)
	}
	return nil
}
