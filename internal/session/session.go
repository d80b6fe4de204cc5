// Package session manages the bi-temporal Session entity (spec.md §3): a
// bounded window of activity within a project. A project has at most one
// active (not-ended) session; starting a new one ends the prior (spec.md
// §9's accepted open question — cross-process races are not additionally
// guarded against beyond the store's single-writer serialization).
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// TierPromotionThreshold is the salience above which a session-tier memory
// is promoted to project tier when its session ends (spec.md GLOSSARY:
// "Tier ... promoted on session end for high-salience memories" — the
// threshold itself is an implementation decision, recorded in DESIGN.md).
const TierPromotionThreshold = 0.6

// Manager starts, ends, and looks up sessions for a project, and applies
// the tier-promotion sweep on session end.
type Manager struct {
	db  store.Store
	mem *memory.Store
}

// New constructs a session Manager over the shared store and memory
// service.
func New(db store.Store, mem *memory.Store) *Manager {
	return &Manager{db: db, mem: mem}
}

// Start ends any currently-active session for projectID and begins a new
// one, returning it.
func (m *Manager) Start(ctx context.Context, projectID string, context_ string) (*store.Session, error) {
	sess := &store.Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		StartedAt: time.Now(),
		Context:   context_,
	}
	if err := m.db.StartSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	return sess, nil
}

// End closes a session, optionally recording a summary, and promotes any
// session-tier memories created or touched above TierPromotionThreshold
// salience to project tier (SPEC_FULL.md §3+ "Tier promotion on session
// end").
func (m *Manager) End(ctx context.Context, sessionID string, summary *string) error {
	now := time.Now()
	if err := m.db.EndSession(ctx, sessionID, now, summary); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return m.promoteTiers(ctx, sessionID)
}

func (m *Manager) promoteTiers(ctx context.Context, sessionID string) error {
	memories, err := m.db.GetMemoriesBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session memories: %w", err)
	}
	for _, mm := range memories {
		if mm.Tier != store.TierSession || mm.Salience < TierPromotionThreshold {
			continue
		}
		if _, err := m.mem.Update(ctx, mm.ID, func(m *store.Memory) {
			m.Tier = store.TierProject
		}); err != nil {
			return fmt.Errorf("promoting memory %s: %w", mm.ID, err)
		}
	}
	return nil
}

// Active returns the current active session for a project, or nil if none.
func (m *Manager) Active(ctx context.Context, projectID string) (*store.Session, error) {
	s, err := m.db.GetActiveSession(ctx, projectID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("loading active session: %w", err)
	}
	return s, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*store.Session, error) {
	s, err := m.db.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return s, nil
}
