// Package memory implements the create/dedup/classify/reinforce business
// logic sitting on top of internal/store's raw CRUD (spec.md §4.D). It is
// the one place that knows how a Memory row is supposed to behave; callers
// (hybrid search, session lifecycle, MCP tools) never touch store.Store's
// memory methods directly.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JoeyEamigh/ccengram/internal/dedup"
	"github.com/JoeyEamigh/ccengram/internal/embed"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// DefaultReinforceAmount and DefaultDeemphasizeAmount are the spec.md §4.D
// table's fallback amounts when a caller passes zero.
const (
	DefaultReinforceAmount   = 0.1
	DefaultDeemphasizeAmount = 0.2
)

// CreateRequest is the input to Create; everything but Content and
// ProjectID is optional and inferred when left zero.
type CreateRequest struct {
	ProjectID  string
	SessionID  string // optional: active session to link against
	Content    string
	Summary    *string
	Sector     store.Sector // inferred by ClassifySector when empty
	Tier       store.Tier   // defaults to TierSession
	Importance float64      // defaults to 0.5
	Tags       []string
	Files      []string
	Categories []string
	MemoryType *store.MemoryType
	ValidFrom  *time.Time
}

// Store is the business-logic facade over a project's memories.
type Store struct {
	db        store.Store
	embedder  *embed.EmbeddingService // optional; nil disables best-effort embedding
	threshold int                     // SimHash duplicate Hamming threshold
}

// New builds a memory Store. embedder may be nil: embedding generation is
// then skipped entirely (not an error, matching spec.md §4.D's "best
// effort" wording).
func New(db store.Store, embedder *embed.EmbeddingService) *Store {
	return &Store{db: db, embedder: embedder, threshold: dedup.DefaultDuplicateThreshold}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Create runs the full spec.md §4.D algorithm: SimHash the content, scan
// existing non-deleted memories for a near-duplicate, and either reinforce
// the existing row or insert a fresh one (classify, extract concepts,
// embed best-effort, link to the active session).
func (s *Store) Create(ctx context.Context, req CreateRequest) (*store.Memory, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("memory: content is required")
	}

	hash := dedup.SimHash(req.Content)

	candidates, err := s.db.FindDuplicateCandidates(ctx, req.ProjectID, 200)
	if err != nil {
		return nil, fmt.Errorf("memory: scanning duplicate candidates: %w", err)
	}
	for _, cand := range candidates {
		if dedup.IsDuplicate(hash, cand.SimHash, s.threshold) {
			return s.reinforceDuplicate(ctx, cand, req.SessionID)
		}
	}

	now := time.Now()
	sector := req.Sector
	if sector == "" {
		sector = ClassifySector(req.Content)
	}
	tier := req.Tier
	if tier == "" {
		tier = store.TierSession
	}
	importance := req.Importance
	if importance == 0 {
		importance = 0.5
	}

	m := &store.Memory{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		Content:      req.Content,
		Summary:      req.Summary,
		ContentHash:  contentHash(req.Content),
		Sector:       sector,
		Tier:         tier,
		Importance:   importance,
		SimHash:      hash,
		Salience:     store.SalienceCeil,
		AccessCount:  0,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		ValidFrom:    req.ValidFrom,
		Tags:         orEmpty(req.Tags),
		Concepts:     ExtractConcepts(req.Content),
		Files:        orEmpty(req.Files),
		Categories:   orEmpty(req.Categories),
		MemoryType:   req.MemoryType,
	}

	if err := s.db.CreateMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("memory: creating: %w", err)
	}

	s.embedBestEffort(ctx, m)

	if req.SessionID != "" {
		if err := s.db.LinkMemoryToSession(ctx, &store.SessionMemory{
			SessionID: req.SessionID,
			MemoryID:  m.ID,
			UsageType: store.UsageCreated,
			CreatedAt: now,
		}); err != nil {
			slog.Warn("memory: linking new memory to session failed", "memory_id", m.ID, "error", err)
		}
	}

	return m, nil
}

// reinforceDuplicate implements the "create the same content again" branch:
// bump salience/access_count on the existing row, link it to the current
// session as reinforced, and return it (spec.md §8 dedup idempotence).
func (s *Store) reinforceDuplicate(ctx context.Context, dup *store.Memory, sessionID string) (*store.Memory, error) {
	reinforced, err := s.Reinforce(ctx, dup.ID, DefaultReinforceAmount)
	if err != nil {
		return nil, fmt.Errorf("memory: reinforcing duplicate: %w", err)
	}
	if sessionID != "" {
		if err := s.db.LinkMemoryToSession(ctx, &store.SessionMemory{
			SessionID: sessionID,
			MemoryID:  dup.ID,
			UsageType: store.UsageReinforced,
			CreatedAt: time.Now(),
		}); err != nil {
			slog.Warn("memory: linking duplicate to session failed", "memory_id", dup.ID, "error", err)
		}
	}
	return reinforced, nil
}

// embedBestEffort generates and persists the memory's vector under the
// active embedding model. Failure is logged and swallowed (spec.md §7
// "Memory creation swallows embedding errors after logging").
func (s *Store) embedBestEffort(ctx context.Context, m *store.Memory) {
	if s.embedder == nil {
		return
	}
	res, err := s.embedder.Embed(ctx, m.Content)
	if err != nil {
		slog.Warn("memory: embedding failed, continuing without vector", "memory_id", m.ID, "error", err)
		return
	}
	if err := s.db.UpsertMemoryVector(ctx, &store.MemoryVector{
		MemoryID:  m.ID,
		ModelID:   res.Model,
		Vector:    res.Vector,
		Dim:       len(res.Vector),
		CreatedAt: time.Now(),
	}); err != nil {
		slog.Warn("memory: persisting vector failed", "memory_id", m.ID, "error", err)
	}
}

// Get returns a memory by id, including soft-deleted rows, so callers can
// tell "gone" from "never existed" (spec.md §8 soft-delete opacity).
func (s *Store) Get(ctx context.Context, id string) (*store.Memory, error) {
	return s.db.GetMemory(ctx, id)
}

// Update applies a field patch via fn, then persists, touching UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, fn func(*store.Memory)) (*store.Memory, error) {
	m, err := s.db.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, store.ErrNotFound
	}
	fn(m)
	m.UpdatedAt = time.Now()
	if err := s.db.UpdateMemory(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete soft-deletes by default; hard=true removes the row and cascades.
func (s *Store) Delete(ctx context.Context, id string, hard bool) error {
	if hard {
		return s.db.HardDeleteMemory(ctx, id)
	}
	return s.db.SoftDeleteMemory(ctx, id, time.Now())
}

// Restore clears a memory's soft-delete flag.
func (s *Store) Restore(ctx context.Context, id string) error {
	return s.db.RestoreMemory(ctx, id)
}

// clamp bounds salience to [SalienceFloor, SalienceCeil] (spec.md §8
// "Salience bounds" invariant, enforced on every mutation).
func clamp(v float64) float64 {
	if v < store.SalienceFloor {
		return store.SalienceFloor
	}
	if v > store.SalienceCeil {
		return store.SalienceCeil
	}
	return v
}

// Reinforce applies salience += amount*(1-salience) with diminishing
// returns as salience approaches 1, bumps access_count, and updates
// last_accessed (spec.md §4.D, §8 reinforce monotonicity).
func (s *Store) Reinforce(ctx context.Context, id string, amount float64) (*store.Memory, error) {
	if amount <= 0 {
		amount = DefaultReinforceAmount
	}
	return s.Update(ctx, id, func(m *store.Memory) {
		m.Salience = clamp(m.Salience + amount*(1-m.Salience))
		m.AccessCount++
		m.LastAccessed = time.Now()
	})
}

// Deemphasize applies salience -= amount, floored at SalienceFloor.
func (s *Store) Deemphasize(ctx context.Context, id string, amount float64) (*store.Memory, error) {
	if amount <= 0 {
		amount = DefaultDeemphasizeAmount
	}
	return s.Update(ctx, id, func(m *store.Memory) {
		m.Salience = clamp(m.Salience - amount)
	})
}

// Touch bumps access_count and last_accessed without changing salience.
func (s *Store) Touch(ctx context.Context, id string) (*store.Memory, error) {
	return s.Update(ctx, id, func(m *store.Memory) {
		m.AccessCount++
		m.LastAccessed = time.Now()
	})
}

// LinkToSession idempotently links a memory to a session with a usage
// type; duplicate links are silently ignored by the store layer.
func (s *Store) LinkToSession(ctx context.Context, memoryID, sessionID string, usage store.UsageType) error {
	return s.db.LinkMemoryToSession(ctx, &store.SessionMemory{
		SessionID: sessionID,
		MemoryID:  memoryID,
		UsageType: usage,
		CreatedAt: time.Now(),
	})
}

// List returns memories matching f, excluding soft-deleted rows unless
// f.IncludeDeleted is set.
func (s *Store) List(ctx context.Context, f store.MemoryListFilter) ([]*store.Memory, error) {
	return s.db.ListMemories(ctx, f)
}

// GetBySession returns every non-deleted memory linked to a session.
func (s *Store) GetBySession(ctx context.Context, sessionID string) ([]*store.Memory, error) {
	return s.db.GetMemoriesBySession(ctx, sessionID)
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
