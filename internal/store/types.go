// Package store is the persistence layer: a single SQLite database (WAL
// mode, foreign keys on) holding relational rows, two FTS5 mirrors
// (memories, documents), and a pure-Go HNSW vector index per embedding
// model. It is the one collaborator every other component reads and
// writes through.
package store

import (
	"context"
	"time"
)

// Sector is the coarse cognitive category of a memory.
type Sector string

const (
	SectorEpisodic   Sector = "episodic"
	SectorSemantic   Sector = "semantic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// Tier is the scope of a memory.
type Tier string

const (
	TierSession Tier = "session"
	TierProject Tier = "project"
	TierGlobal  Tier = "global"
)

// MemoryType is the richer, optional classification of a memory.
type MemoryType string

const (
	MemoryTypePreference     MemoryType = "preference"
	MemoryTypeCodebase       MemoryType = "codebase"
	MemoryTypeDecision       MemoryType = "decision"
	MemoryTypeGotcha         MemoryType = "gotcha"
	MemoryTypePattern        MemoryType = "pattern"
	MemoryTypeTurnSummary    MemoryType = "turn_summary"
	MemoryTypeTaskCompletion MemoryType = "task_completion"
)

// UsageType describes how a memory relates to a session.
type UsageType string

const (
	UsageCreated    UsageType = "created"
	UsageRecalled   UsageType = "recalled"
	UsageUpdated    UsageType = "updated"
	UsageReinforced UsageType = "reinforced"
)

// RelationshipType is the kind of a directed edge between two memories.
type RelationshipType string

const (
	RelSupersedes     RelationshipType = "SUPERSEDES"
	RelContradicts    RelationshipType = "CONTRADICTS"
	RelRelatedTo      RelationshipType = "RELATED_TO"
	RelBuildsOn       RelationshipType = "BUILDS_ON"
	RelConfirms       RelationshipType = "CONFIRMS"
	RelAppliesTo      RelationshipType = "APPLIES_TO"
	RelDependsOn      RelationshipType = "DEPENDS_ON"
	RelAlternativeTo  RelationshipType = "ALTERNATIVE_TO"
)

// ExtractedBy names who/what created a relationship edge.
type ExtractedBy string

const (
	ExtractedByUser   ExtractedBy = "user"
	ExtractedByLLM    ExtractedBy = "llm"
	ExtractedBySystem ExtractedBy = "system"
)

// Salience bounds (spec.md §3, §8).
const (
	SalienceFloor = 0.05
	SalienceCeil  = 1.0
)

// Project scopes every other entity to a single indexed codebase.
type Project struct {
	ID        string
	Path      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is a bounded window of activity within a project. A project has
// at most one active (not-ended) session.
type Session struct {
	ID        string
	ProjectID string
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   *string
	Context   string // free-form JSON blob
}

// Memory is a single unit of persistent, free-text knowledge.
type Memory struct {
	ID           string
	ProjectID    string
	Content      string
	Summary      *string
	ContentHash  string
	Sector       Sector
	Tier         Tier
	Importance   float64
	SimHash      string
	Salience     float64
	AccessCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastAccessed time.Time
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	IsDeleted    bool
	DeletedAt    *time.Time
	Tags         []string
	Concepts     []string
	Files        []string
	Categories   []string
	MemoryType   *MemoryType
}

// MemoryVector is the at-most-one dense embedding for a memory under a
// given model.
type MemoryVector struct {
	MemoryID  string
	ModelID   string
	Vector    []float32
	Dim       int
	CreatedAt time.Time
}

// SessionMemory links a memory to the session that created, recalled,
// updated, or reinforced it.
type SessionMemory struct {
	SessionID string
	MemoryID  string
	UsageType UsageType
	CreatedAt time.Time
}

// MemoryRelationship is a typed directed edge between two memories.
type MemoryRelationship struct {
	ID               string
	SourceMemoryID   string
	TargetMemoryID   string
	RelationshipType RelationshipType
	Confidence       float64
	ExtractedBy      ExtractedBy
	CreatedAt        time.Time
	ValidFrom        *time.Time
	ValidUntil       *time.Time
}

// Document is per-file metadata for an indexed source file. FullContent
// mirrors the file body and backs documents_fts.
type Document struct {
	ID          string
	ProjectID   string
	Path        string
	Language    string
	LineCount   int
	Checksum    string
	IsCode      bool
	FullContent string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkType categorizes a DocumentChunk's content.
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeImports  ChunkType = "imports"
	ChunkTypeBlock    ChunkType = "block"
)

// DocumentChunk is a contiguous, retrievable span of a Document.
type DocumentChunk struct {
	ID             string
	DocumentID     string
	ChunkIndex     int
	Content        string
	StartOffset    int
	EndOffset      int
	TokensEstimate int
	StartLine      int
	EndLine        int
	ChunkType      ChunkType
	Symbols        []string
}

// DocumentVector is the at-most-one embedding for a chunk under a model.
type DocumentVector struct {
	ChunkID   string
	ModelID   string
	Vector    []float32
	Dim       int
	CreatedAt time.Time
}

// IndexedFile drives incremental re-indexing decisions.
type IndexedFile struct {
	ProjectID string
	Path      string
	Checksum  string
	MTime     time.Time
	IndexedAt time.Time
}

// CodeIndexState is per-project pipeline bookkeeping.
type CodeIndexState struct {
	ProjectID      string
	LastIndexedAt  time.Time
	IndexedFiles   int
	GitignoreHash  string
}

// EmbeddingModel is a registered (provider, model) pair; at most one is
// active at a time.
type EmbeddingModel struct {
	ID         string // "provider:model"
	Provider   string
	Name       string
	Dimensions int
	IsActive   bool
}

// WatcherLock is the single-writer lock record for a project's watcher.
type WatcherLock struct {
	ProjectHash  string
	PID          int
	ProjectPath  string
	StartedAt    time.Time
	LastActivity time.Time
	IndexedFiles int
}

// MemoryListFilter narrows a List query.
type MemoryListFilter struct {
	ProjectID      string
	Sector         Sector
	Tier           Tier
	MinSalience    float64
	IncludeDeleted bool
	MemoryType     MemoryType
	OrderBy        string // "updated_at", "created_at", "salience"
	Limit          int
}

// Store is the full persistence contract used by every other component.
type Store interface {
	// Project
	UpsertProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByPath(ctx context.Context, path string) (*Project, error)

	// Session
	StartSession(ctx context.Context, s *Session) error
	EndSession(ctx context.Context, id string, endedAt time.Time, summary *string) error
	GetActiveSession(ctx context.Context, projectID string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)

	// Memory
	CreateMemory(ctx context.Context, m *Memory) error
	GetMemory(ctx context.Context, id string) (*Memory, error)
	UpdateMemory(ctx context.Context, m *Memory) error
	SoftDeleteMemory(ctx context.Context, id string, at time.Time) error
	RestoreMemory(ctx context.Context, id string) error
	HardDeleteMemory(ctx context.Context, id string) error
	ListMemories(ctx context.Context, f MemoryListFilter) ([]*Memory, error)
	FindDuplicateCandidates(ctx context.Context, projectID string, limit int) ([]*Memory, error)
	LinkMemoryToSession(ctx context.Context, sm *SessionMemory) error
	GetMemoriesBySession(ctx context.Context, sessionID string) ([]*Memory, error)
	GetSourceSession(ctx context.Context, memoryID string) (*Session, error)
	GetSourceSessions(ctx context.Context, memoryIDs []string) (map[string]*Session, error)
	SearchMemoriesFTS(ctx context.Context, projectID, query string, limit int) (map[string]float64, error)

	// Vectors
	UpsertMemoryVector(ctx context.Context, v *MemoryVector) error
	GetMemoryVector(ctx context.Context, memoryID, modelID string) (*MemoryVector, error)
	SearchMemoryVectors(ctx context.Context, projectID, modelID string, query []float32, dim, limit int) (map[string]float32, error)
	DeleteMemoryVector(ctx context.Context, memoryID string) error
	VectorIndexStats(kind, modelID string) (ratio float64, orphans, live int)
	CompactMemoryVectors(ctx context.Context, modelID string) error
	CompactDocumentVectors(ctx context.Context, modelID string) error

	// Relationships
	CreateRelationship(ctx context.Context, r *MemoryRelationship) error
	SetValidUntil(ctx context.Context, memoryID string, until time.Time) error
	GetSuperseding(ctx context.Context, memoryID string) (*Memory, error)
	GetSupersedingMap(ctx context.Context, memoryIDs []string) (map[string]*Memory, error)
	GetSupersededBy(ctx context.Context, memoryID string) (string, bool, error)
	CountRelated(ctx context.Context, memoryID string) (int, error)
	CountRelatedBatch(ctx context.Context, memoryIDs []string) (map[string]int, error)

	// Documents / chunks / code index
	UpsertDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentByPath(ctx context.Context, projectID, path string) (*Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []*DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]*DocumentChunk, error)
	GetChunk(ctx context.Context, chunkID string) (*DocumentChunk, error)
	UpsertDocumentVector(ctx context.Context, v *DocumentVector) error
	GetDocumentVectorsByKeys(ctx context.Context, modelID string, chunkIDs []string) (map[string]bool, error)
	GetDocumentVector(ctx context.Context, chunkID, modelID string) (*DocumentVector, error)
	SearchDocumentsFTS(ctx context.Context, projectID, query string, limit int) (map[string]float64, error)
	SearchDocumentVectors(ctx context.Context, projectID, modelID string, query []float32, dim, limit int) (map[string]float32, error)

	GetIndexedFile(ctx context.Context, projectID, path string) (*IndexedFile, error)
	UpsertIndexedFile(ctx context.Context, f *IndexedFile) error
	DeleteIndexedFile(ctx context.Context, projectID, path string) error
	GetCodeIndexState(ctx context.Context, projectID string) (*CodeIndexState, error)
	UpsertCodeIndexState(ctx context.Context, s *CodeIndexState) error

	// Embedding models
	RegisterEmbeddingModel(ctx context.Context, m *EmbeddingModel) error
	GetActiveEmbeddingModel(ctx context.Context) (*EmbeddingModel, error)

	// Watcher locks
	AcquireWatcherLock(ctx context.Context, l *WatcherLock, isAlive func(pid int) bool) (bool, error)
	ReleaseWatcherLock(ctx context.Context, projectHash string) error
	TouchWatcherLock(ctx context.Context, projectHash string, indexedFiles int) error
	ListWatcherLocks(ctx context.Context, isAlive func(pid int) bool) ([]*WatcherLock, error)

	Close() error
}
