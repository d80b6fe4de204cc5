package store

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only schema step, applied inside the single
// startup transaction. Statement failure aborts startup (spec.md §7).
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is the ordered, monotonically versioned schema history.
// Append-only: never edit a released entry, only add new ones.
var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				applied_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				path TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id),
				started_at TEXT NOT NULL,
				ended_at TEXT,
				summary TEXT,
				context TEXT NOT NULL DEFAULT '{}'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_project_active
				ON sessions(project_id, ended_at)`,
			`CREATE TABLE IF NOT EXISTS memories (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id),
				content TEXT NOT NULL,
				summary TEXT,
				content_hash TEXT NOT NULL,
				sector TEXT NOT NULL,
				tier TEXT NOT NULL,
				importance REAL NOT NULL DEFAULT 0.5,
				simhash TEXT,
				salience REAL NOT NULL DEFAULT 1.0,
				access_count INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				last_accessed TEXT NOT NULL,
				valid_from TEXT,
				valid_until TEXT,
				is_deleted INTEGER NOT NULL DEFAULT 0,
				deleted_at TEXT,
				tags TEXT NOT NULL DEFAULT '[]',
				concepts TEXT NOT NULL DEFAULT '[]',
				files TEXT NOT NULL DEFAULT '[]',
				categories TEXT NOT NULL DEFAULT '[]',
				memory_type TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id, is_deleted)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_simhash ON memories(project_id, simhash, is_deleted)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_salience ON memories(project_id, salience)`,
			`CREATE TABLE IF NOT EXISTS memory_vectors (
				memory_id TEXT PRIMARY KEY REFERENCES memories(id),
				model_id TEXT NOT NULL,
				vector BLOB NOT NULL,
				dim INTEGER NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS session_memories (
				session_id TEXT NOT NULL REFERENCES sessions(id),
				memory_id TEXT NOT NULL REFERENCES memories(id),
				usage_type TEXT NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (session_id, memory_id, usage_type)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_session_memories_memory ON session_memories(memory_id)`,
			`CREATE TABLE IF NOT EXISTS memory_relationships (
				id TEXT PRIMARY KEY,
				source_memory_id TEXT NOT NULL REFERENCES memories(id),
				target_memory_id TEXT NOT NULL REFERENCES memories(id),
				relationship_type TEXT NOT NULL,
				confidence REAL NOT NULL DEFAULT 1.0,
				extracted_by TEXT NOT NULL,
				created_at TEXT NOT NULL,
				valid_from TEXT,
				valid_until TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_relationships_source ON memory_relationships(source_memory_id, valid_until)`,
			`CREATE INDEX IF NOT EXISTS idx_relationships_target ON memory_relationships(target_memory_id, valid_until)`,
			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id),
				path TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT '',
				line_count INTEGER NOT NULL DEFAULT 0,
				checksum TEXT NOT NULL DEFAULT '',
				is_code INTEGER NOT NULL DEFAULT 0,
				full_content TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(project_id, path)
			)`,
			`CREATE TABLE IF NOT EXISTS document_chunks (
				id TEXT PRIMARY KEY,
				document_id TEXT NOT NULL REFERENCES documents(id),
				chunk_index INTEGER NOT NULL,
				content TEXT NOT NULL,
				start_offset INTEGER NOT NULL,
				end_offset INTEGER NOT NULL,
				tokens_estimate INTEGER NOT NULL,
				start_line INTEGER NOT NULL,
				end_line INTEGER NOT NULL,
				chunk_type TEXT NOT NULL,
				symbols TEXT NOT NULL DEFAULT '[]'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id, chunk_index)`,
			`CREATE TABLE IF NOT EXISTS document_vectors (
				chunk_id TEXT PRIMARY KEY REFERENCES document_chunks(id),
				model_id TEXT NOT NULL,
				vector BLOB NOT NULL,
				dim INTEGER NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS indexed_files (
				project_id TEXT NOT NULL REFERENCES projects(id),
				path TEXT NOT NULL,
				checksum TEXT NOT NULL,
				mtime TEXT NOT NULL,
				indexed_at TEXT NOT NULL,
				PRIMARY KEY (project_id, path)
			)`,
			`CREATE TABLE IF NOT EXISTS code_index_state (
				project_id TEXT PRIMARY KEY REFERENCES projects(id),
				last_indexed_at TEXT NOT NULL,
				indexed_files INTEGER NOT NULL DEFAULT 0,
				gitignore_hash TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS embedding_models (
				id TEXT PRIMARY KEY,
				provider TEXT NOT NULL,
				name TEXT NOT NULL,
				dimensions INTEGER NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS watcher_locks (
				project_hash TEXT PRIMARY KEY,
				pid INTEGER NOT NULL,
				project_path TEXT NOT NULL,
				started_at TEXT NOT NULL,
				last_activity TEXT NOT NULL,
				indexed_files INTEGER NOT NULL DEFAULT 0
			)`,
			// FTS5 mirrors, kept in sync via triggers (external-content tables).
			`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
				content, content='memories', content_rowid='rowid', tokenize='unicode61'
			)`,
			`CREATE TRIGGER IF NOT EXISTS memories_fts_ai AFTER INSERT ON memories BEGIN
				INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER IF NOT EXISTS memories_fts_ad AFTER DELETE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			END`,
			`CREATE TRIGGER IF NOT EXISTS memories_fts_au AFTER UPDATE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
				INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
				full_content, content='documents', content_rowid='rowid', tokenize='unicode61'
			)`,
			`CREATE TRIGGER IF NOT EXISTS documents_fts_ai AFTER INSERT ON documents BEGIN
				INSERT INTO documents_fts(rowid, full_content) VALUES (new.rowid, new.full_content);
			END`,
			`CREATE TRIGGER IF NOT EXISTS documents_fts_ad AFTER DELETE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, full_content) VALUES ('delete', old.rowid, old.full_content);
			END`,
			`CREATE TRIGGER IF NOT EXISTS documents_fts_au AFTER UPDATE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, full_content) VALUES ('delete', old.rowid, old.full_content);
				INSERT INTO documents_fts(rowid, full_content) VALUES (new.rowid, new.full_content);
			END`,
		},
	},
}

// migrate applies any pending migrations, in order, inside a single
// transaction. A failing statement aborts the whole migration (and, by
// extension, startup).
func migrateDB(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migration table: %w", err)
	}

	var current int
	_ = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}

		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
			}
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, datetime('now'))`,
			m.version, m.name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}
