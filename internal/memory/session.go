package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// Sessions is the bi-temporal lifecycle manager for spec.md §3's Session
// entity: a bounded window of activity within a project. It is distinct
// from internal/session's named, user-switchable workspace profiles (a CLI
// convenience for juggling multiple project roots); this type owns the
// per-project "at most one active session" invariant that memory creation
// and hybrid search link against.
type Sessions struct {
	db store.Store
}

// NewSessions builds a Sessions manager over db.
func NewSessions(db store.Store) *Sessions {
	return &Sessions{db: db}
}

// Start ends the project's current active session (if any) and begins a
// new one (spec.md §3: "starting a new one for the same project ends the
// prior"; spec.md §9 Open Questions: concurrent creates across processes
// may race and double-end an already-ended session, which is accepted, not
// corrected).
func (s *Sessions) Start(ctx context.Context, projectID, context string) (*store.Session, error) {
	now := time.Now()

	if prior, err := s.db.GetActiveSession(ctx, projectID); err == nil && prior != nil {
		if err := s.db.EndSession(ctx, prior.ID, now, nil); err != nil {
			return nil, err
		}
	}

	sess := &store.Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		StartedAt: now,
		Context:   context,
	}
	if err := s.db.StartSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// End closes a session, recording an optional summary.
func (s *Sessions) End(ctx context.Context, id string, summary *string) error {
	return s.db.EndSession(ctx, id, time.Now(), summary)
}

// Active returns the project's current active session, or nil if none.
func (s *Sessions) Active(ctx context.Context, projectID string) (*store.Session, error) {
	return s.db.GetActiveSession(ctx, projectID)
}

// Get fetches a session by id.
func (s *Sessions) Get(ctx context.Context, id string) (*store.Session, error) {
	return s.db.GetSession(ctx, id)
}
