// Package decay implements per-sector salience decay (spec.md §4.E) as a
// pure formula plus a cancellable, coalescing background task that applies
// it across a project's memories.
package decay

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// PerSectorRate is the decay constant k_sector, per day (spec.md §4.D
// "Per-sector decay constants").
var PerSectorRate = map[store.Sector]float64{
	store.SectorEmotional:  0.003,
	store.SectorSemantic:   0.005,
	store.SectorReflective: 0.008,
	store.SectorProcedural: 0.01,
	store.SectorEpisodic:   0.02,
}

// DefaultInterval and DefaultBatchSize are the background task's defaults
// (spec.md §4.E).
const (
	DefaultInterval  = time.Hour
	DefaultBatchSize = 500
)

// Apply computes the new salience for a memory given how many days have
// elapsed since its last access (spec.md §4.E's formula). A memory at or
// below the floor is left untouched (no-op, per spec.md §4.E).
func Apply(m *store.Memory, now time.Time) float64 {
	if m.Salience <= store.SalienceFloor {
		return m.Salience
	}

	daysSinceAccess := now.Sub(m.LastAccessed).Hours() / 24
	if daysSinceAccess < 0 {
		daysSinceAccess = 0
	}

	k := PerSectorRate[m.Sector]
	if k == 0 {
		k = PerSectorRate[store.SectorSemantic]
	}

	decayed := m.Salience * math.Exp(-k/(m.Importance+0.1)*daysSinceAccess)
	accessBoost := math.Min(0.1, math.Log(1+float64(m.AccessCount))*0.02)

	result := decayed + accessBoost
	if result < store.SalienceFloor {
		result = store.SalienceFloor
	}
	if result > store.SalienceCeil {
		result = store.SalienceCeil
	}
	return result
}

// Task runs Apply across non-deleted, above-floor memories on an interval,
// persisting the result. It is cancellable via its context and coalesces:
// a tick is skipped entirely if the previous run hasn't finished.
type Task struct {
	db        store.Store
	projectID string
	interval  time.Duration
	batchSize int

	mu      sync.Mutex
	running bool
}

// NewTask builds a decay Task for one project. Zero interval/batchSize
// fall back to the spec.md §4.E defaults.
func NewTask(db store.Store, projectID string, interval time.Duration, batchSize int) *Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Task{db: db, projectID: projectID, interval: interval, batchSize: batchSize}
}

// Run blocks, ticking every t.interval, until ctx is cancelled.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick runs one decay pass, skipping entirely if a previous pass is still
// in flight (spec.md §4.E "must coalesce, no overlapping runs").
func (t *Task) tick(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	if err := t.RunOnce(ctx); err != nil {
		slog.Warn("decay: pass failed", "project_id", t.projectID, "error", err)
	}
}

// RunOnce selects up to batchSize non-deleted, above-floor memories
// ordered by updated_at ascending, decays each, and persists the result.
// Exported so callers (and tests) can drive a single pass deterministically
// without waiting on the ticker.
func (t *Task) RunOnce(ctx context.Context) error {
	candidates, err := t.db.ListMemories(ctx, store.MemoryListFilter{
		ProjectID:   t.projectID,
		MinSalience: store.SalienceFloor + 1e-9,
		OrderBy:     "updated_at",
		Limit:       t.batchSize,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	for _, m := range candidates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		newSalience := Apply(m, now)
		if newSalience == m.Salience {
			continue
		}
		m.Salience = newSalience
		if err := t.db.UpdateMemory(ctx, m); err != nil {
			slog.Warn("decay: persisting memory failed", "memory_id", m.ID, "error", err)
		}
	}
	return nil
}
