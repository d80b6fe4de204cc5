// Package relationship is the thin business-logic layer over
// store.Store's typed memory-to-memory edges (spec.md §4.F). It owns the
// one piece of cross-row logic the raw store methods don't: supersede's
// two-step "create the edge, then close the old memory's validity window."
package relationship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// ErrAlreadySuperseded is returned by Supersede when the target memory's
// validity window is already closed.
var ErrAlreadySuperseded = errors.New("relationship: memory is already superseded")

// Relationships wraps store.Store for the edge operations spec.md §4.F
// describes.
type Relationships struct {
	db store.Store
}

func New(db store.Store) *Relationships {
	return &Relationships{db: db}
}

// Create inserts a typed edge. confidence is 1.0 unless overridden; per
// spec.md §4.F, user/system-extracted edges default to full confidence,
// while LLM-extracted edges should supply their own.
func (r *Relationships) Create(ctx context.Context, source, target string, relType store.RelationshipType, extractedBy store.ExtractedBy, confidence float64) (*store.MemoryRelationship, error) {
	if confidence <= 0 {
		confidence = 1.0
	}
	rel := &store.MemoryRelationship{
		ID:               uuid.NewString(),
		SourceMemoryID:   source,
		TargetMemoryID:   target,
		RelationshipType: relType,
		Confidence:       confidence,
		ExtractedBy:      extractedBy,
		CreatedAt:        time.Now(),
	}
	if err := r.db.CreateRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("relationship: creating: %w", err)
	}
	return rel, nil
}

// Supersede creates a SUPERSEDES edge new->old and closes old's validity
// window at the edge's creation time, but only if old isn't already
// superseded (spec.md §4.F invariant; §9 "reversing is not supported").
func (r *Relationships) Supersede(ctx context.Context, oldID, newID string) (*store.MemoryRelationship, error) {
	old, err := r.db.GetMemory(ctx, oldID)
	if err != nil {
		return nil, fmt.Errorf("relationship: loading superseded memory: %w", err)
	}
	if old.ValidUntil != nil {
		return nil, ErrAlreadySuperseded
	}

	rel, err := r.Create(ctx, newID, oldID, store.RelSupersedes, store.ExtractedBySystem, 1.0)
	if err != nil {
		return nil, err
	}
	if err := r.db.SetValidUntil(ctx, oldID, rel.CreatedAt); err != nil {
		return nil, fmt.Errorf("relationship: closing superseded memory's validity: %w", err)
	}
	return rel, nil
}

// GetSuperseding returns the memory that currently supersedes memoryID, if
// any (newest active SUPERSEDES source whose own valid_until is unset).
func (r *Relationships) GetSuperseding(ctx context.Context, memoryID string) (*store.Memory, error) {
	return r.db.GetSuperseding(ctx, memoryID)
}

// GetSupersededBy returns the id of the memory that memoryID supersedes.
func (r *Relationships) GetSupersededBy(ctx context.Context, memoryID string) (string, bool, error) {
	return r.db.GetSupersededBy(ctx, memoryID)
}

// CountRelated counts active (non-expired) edges touching memoryID.
func (r *Relationships) CountRelated(ctx context.Context, memoryID string) (int, error) {
	return r.db.CountRelated(ctx, memoryID)
}
