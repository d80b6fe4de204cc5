package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// vectorKind distinguishes the two embedding domains, which never share an
// index even when they happen to use the same model.
type vectorKind string

const (
	memoryVectorKind   vectorKind = "memory"
	documentVectorKind vectorKind = "document"
)

// vectorIndexSet holds one pure-Go HNSW graph per (kind, model) pair. The
// underlying rows are the source of truth; these graphs are rebuilt from
// them on startup and are safe to discard.
type vectorIndexSet struct {
	mu      sync.RWMutex
	graphs  map[string]*hnsw.Graph[uint64]
	idMap   map[string]map[string]uint64 // indexKey -> external id -> internal key
	keyMap  map[string]map[uint64]string // indexKey -> internal key -> external id
	nextKey map[string]uint64
	orphans map[string]int // indexKey -> count of replaced, unreachable nodes
}

func newVectorIndexSet() *vectorIndexSet {
	return &vectorIndexSet{
		graphs:  make(map[string]*hnsw.Graph[uint64]),
		idMap:   make(map[string]map[string]uint64),
		keyMap:  make(map[string]map[uint64]string),
		nextKey: make(map[string]uint64),
	}
}

func indexKey(kind vectorKind, modelID string) string {
	return string(kind) + ":" + modelID
}

func (v *vectorIndexSet) graphFor(key string) *hnsw.Graph[uint64] {
	g, ok := v.graphs[key]
	if !ok {
		g = hnsw.NewGraph[uint64]()
		g.Distance = hnsw.CosineDistance
		g.M = 16
		g.EfSearch = 20
		g.Ml = 0.25
		v.graphs[key] = g
		v.idMap[key] = make(map[string]uint64)
		v.keyMap[key] = make(map[uint64]string)
	}
	return g
}

// upsert adds or replaces a vector. Replacement is lazy: the old graph node
// is orphaned rather than removed, avoiding coder/hnsw's last-node-delete
// edge case. Orphans accumulate in orphanCount until compact reclaims them.
func (v *vectorIndexSet) upsert(kind vectorKind, modelID, id string, vec []float32) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := indexKey(kind, modelID)
	g := v.graphFor(key)

	if old, exists := v.idMap[key][id]; exists {
		delete(v.keyMap[key], old)
		if v.orphans == nil {
			v.orphans = make(map[string]int)
		}
		v.orphans[key]++
	}

	norm := make([]float32, len(vec))
	copy(norm, vec)
	normalizeVectorInPlace(norm)

	k := v.nextKey[key]
	v.nextKey[key] = k + 1
	g.Add(hnsw.MakeNode(k, norm))
	v.idMap[key][id] = k
	v.keyMap[key][k] = id
}

// orphanRatio reports this index's orphaned-node fraction and live count,
// the input to the daemon's idle-triggered compaction policy.
func (v *vectorIndexSet) orphanRatio(kind vectorKind, modelID string) (ratio float64, orphans, live int) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	key := indexKey(kind, modelID)
	live = len(v.idMap[key])
	orphans = v.orphans[key]
	total := live + orphans
	if total == 0 {
		return 0, 0, 0
	}
	return float64(orphans) / float64(total), orphans, live
}

// compact rebuilds the graph for (kind, modelID) from its live id/vector
// set, dropping every orphaned node. The caller must already hold the
// source vectors (re-read from SQLite, since the graph itself doesn't
// store the original, pre-normalization float32 slices).
func (v *vectorIndexSet) compact(kind vectorKind, modelID string, live map[string][]float32) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := indexKey(kind, modelID)
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25

	idMap := make(map[string]uint64, len(live))
	keyMap := make(map[uint64]string, len(live))
	var nextKey uint64
	for id, vec := range live {
		norm := make([]float32, len(vec))
		copy(norm, vec)
		normalizeVectorInPlace(norm)
		g.Add(hnsw.MakeNode(nextKey, norm))
		idMap[id] = nextKey
		keyMap[nextKey] = id
		nextKey++
	}

	v.graphs[key] = g
	v.idMap[key] = idMap
	v.keyMap[key] = keyMap
	v.nextKey[key] = nextKey
	delete(v.orphans, key)
}

// delete removes id from every model index under kind, since the caller
// does not track which models a given memory/chunk has been embedded with.
func (v *vectorIndexSet) delete(kind vectorKind, id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	prefix := string(kind) + ":"
	for key, ids := range v.idMap {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if k, ok := ids[id]; ok {
			delete(ids, id)
			delete(v.keyMap[key], k)
		}
	}
}

// search returns external-id -> cosine similarity (0..1, higher is better)
// for the k nearest neighbors of query, restricted to allowed ids (a
// project-scoped filter applied after the graph search, since the graph
// itself is unscoped).
func (v *vectorIndexSet) search(kind vectorKind, modelID string, query []float32, dim, limit int, allowed map[string]bool) map[string]float32 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	key := indexKey(kind, modelID)
	g, ok := v.graphs[key]
	if !ok || g.Len() == 0 || len(query) != dim {
		return map[string]float32{}
	}

	norm := make([]float32, len(query))
	copy(norm, query)
	normalizeVectorInPlace(norm)

	// Over-fetch since the allowed-id filter is applied post-hoc.
	fetch := limit * 4
	if fetch < limit+16 {
		fetch = limit + 16
	}
	nodes := g.Search(norm, fetch)

	out := make(map[string]float32, limit)
	for _, node := range nodes {
		id, exists := v.keyMap[key][node.Key]
		if !exists {
			continue
		}
		if allowed != nil && !allowed[id] {
			continue
		}
		dist := g.Distance(norm, node.Value)
		out[id] = 1.0 - dist/2.0
		if len(out) >= limit {
			break
		}
	}
	return out
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// encodeVector / decodeVector serialize a dense vector as a little-endian
// float32 BLOB, the on-disk form for memory_vectors.vector and
// document_vectors.vector.
func encodeVector(v []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(len(v) * 4)
	for _, f := range v {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("encoding vector: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(b))
	}
	n := len(b) / 4
	out := make([]float32, n)
	r := bytes.NewReader(b)
	for i := 0; i < n; i++ {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, fmt.Errorf("decoding vector: %w", err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) UpsertMemoryVector(ctx context.Context, v *MemoryVector) error {
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
		INSERT INTO memory_vectors (memory_id, model_id, vector, dim, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET model_id = excluded.model_id, vector = excluded.vector,
			dim = excluded.dim, created_at = excluded.created_at
	`, v.MemoryID, v.ModelID, blob, v.Dim, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting memory vector: %w", err)
	}

	s.vectors.upsert(memoryVectorKind, v.ModelID, v.MemoryID, v.Vector)
	return nil
}

func (s *SQLiteStore) GetMemoryVector(ctx context.Context, memoryID, modelID string) (*MemoryVector, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT memory_id, model_id, vector, dim, created_at FROM memory_vectors
		WHERE memory_id = ? AND model_id = ?
	`, memoryID, modelID)

	var mv MemoryVector
	var blob []byte
	var createdAt string
	if err := row.Scan(&mv.MemoryID, &mv.ModelID, &blob, &mv.Dim, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning memory vector: %w", err)
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, err
	}
	mv.Vector = vec
	mv.CreatedAt = parseTime(createdAt)
	return &mv, nil
}

func (s *SQLiteStore) DeleteMemoryVector(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM memory_vectors WHERE memory_id = ?`, memoryID)
	if err != nil {
		return fmt.Errorf("deleting memory vector: %w", err)
	}
	s.vectors.delete(memoryVectorKind, memoryID)
	return nil
}

// VectorIndexStats reports the orphaned-node ratio for one embedding
// domain/model pair, feeding the daemon's idle-triggered compaction policy
// (internal/daemon.CompactionManager).
func (s *SQLiteStore) VectorIndexStats(kind, modelID string) (ratio float64, orphans, live int) {
	return s.vectors.orphanRatio(vectorKind(kind), modelID)
}

// CompactMemoryVectors rebuilds the in-memory HNSW graph for modelID from
// the memory_vectors table, reclaiming every orphaned node left behind by
// lazy upsert replacement.
func (s *SQLiteStore) CompactMemoryVectors(ctx context.Context, modelID string) error {
	live, err := s.loadVectors(ctx, "memory_vectors", "memory_id", modelID)
	if err != nil {
		return err
	}
	s.vectors.compact(memoryVectorKind, modelID, live)
	return nil
}

// CompactDocumentVectors is CompactMemoryVectors for the document/chunk
// embedding domain.
func (s *SQLiteStore) CompactDocumentVectors(ctx context.Context, modelID string) error {
	live, err := s.loadVectors(ctx, "document_vectors", "chunk_id", modelID)
	if err != nil {
		return err
	}
	s.vectors.compact(documentVectorKind, modelID, live)
	return nil
}

func (s *SQLiteStore) loadVectors(ctx context.Context, table, idCol, modelID string) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, vector FROM %s WHERE model_id = ?`, idCol, table), modelID) //nolint:gosec // table/idCol are constants from this file, not user input
	if err != nil {
		return nil, fmt.Errorf("loading vectors from %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string][]float32{}
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		out[id] = vec
	}
	return out, rows.Err()
}
