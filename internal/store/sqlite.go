package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// SQLiteStore implements Store over a single WAL-mode SQLite database plus
// an in-memory HNSW index per embedding model for vector search.
type SQLiteStore struct {
	mu      sync.Mutex // serializes write transactions (spec.md §4.A)
	db      *sql.DB
	path    string
	vectors *vectorIndexSet

	// docFTS is nil when Search.BM25Backend is "sqlite" (default): document
	// keyword search runs through the documents_fts FTS5 table below. When
	// set (backend "bleve"), UpsertDocument/DeleteDocument/SearchDocumentsFTS
	// mirror into/read from it instead.
	docFTS *BleveDocIndex
}

var _ Store = (*SQLiteStore)(nil)

// Open creates/opens the store at path (or an in-memory database when path
// is empty, for tests), runs pending migrations, and configures WAL mode,
// synchronous=NORMAL, and foreign keys on — matching the teacher's
// pragma sequence for modernc.org/sqlite.
func Open(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection avoids lock contention on the WAL writer; WAL
	// mode still allows concurrent readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := migrateDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:      db,
		path:    path,
		vectors: newVectorIndexSet(),
	}, nil
}

// OpenWithBackend is Open plus selection of the document keyword-search
// backend: "sqlite" (default, the FTS5 virtual table) or "bleve" (the
// legacy single-process engine, opened alongside the database at
// "<path>.bleve"). Any other value behaves like "sqlite".
func OpenWithBackend(path, backend string) (*SQLiteStore, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	if backend != "bleve" {
		return s, nil
	}

	dir := ""
	if path != "" {
		dir = path + ".bleve"
	}
	idx, err := OpenBleveDocIndex(dir)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("opening bleve backend: %w", err)
	}
	s.docFTS = idx
	return s, nil
}

// Close releases the database handle and, when configured, the bleve
// document index.
func (s *SQLiteStore) Close() error {
	if s.docFTS != nil {
		_ = s.docFTS.Close()
	}
	return s.db.Close()
}

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return []string{}
	}
	return v
}

func nullableTimeToPtr(t sql.NullString) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}
