package decay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

func TestApplyIsNoOpAtOrBelowFloor(t *testing.T) {
	m := &store.Memory{Sector: store.SectorEpisodic, Salience: store.SalienceFloor, Importance: 0.5, LastAccessed: time.Now().Add(-30 * 24 * time.Hour)}
	assert.Equal(t, store.SalienceFloor, Apply(m, time.Now()))
}

func TestApplyDecaysOverTimeAndRespectsBounds(t *testing.T) {
	now := time.Now()
	m := &store.Memory{
		Sector:       store.SectorEpisodic, // fastest decay rate
		Salience:     1.0,
		Importance:   0.1,
		AccessCount:  0,
		LastAccessed: now.Add(-30 * 24 * time.Hour),
	}
	result := Apply(m, now)
	assert.Less(t, result, 1.0)
	assert.GreaterOrEqual(t, result, store.SalienceFloor)
	assert.LessOrEqual(t, result, store.SalienceCeil)
}

func TestApplyNeverExceedsCeiling(t *testing.T) {
	now := time.Now()
	m := &store.Memory{
		Sector:       store.SectorSemantic,
		Salience:     1.0,
		Importance:   1.0,
		AccessCount:  10000,
		LastAccessed: now,
	}
	assert.Equal(t, store.SalienceCeil, Apply(m, now))
}

func TestRunOnceDecaysAndCoalesces(t *testing.T) {
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	require.NoError(t, db.UpsertProject(ctx, &store.Project{ID: "p", Path: "/p", Name: "p"}))
	old := time.Now().Add(-60 * 24 * time.Hour)
	m := &store.Memory{
		ID: "m1", ProjectID: "p", Content: "stale fact", ContentHash: "h1",
		Sector: store.SectorEpisodic, Tier: store.TierProject, Importance: 0.2,
		Salience: 1.0, CreatedAt: old, UpdatedAt: old, LastAccessed: old,
	}
	require.NoError(t, db.CreateMemory(ctx, m))

	task := NewTask(db, "p", time.Hour, 10)
	require.NoError(t, task.RunOnce(ctx))

	after, err := db.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Less(t, after.Salience, 1.0)

	// Coalescing: a second pass started while "running" is true is skipped.
	task.mu.Lock()
	task.running = true
	task.mu.Unlock()
	task.tick(ctx)
	stillSame, err := db.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, after.Salience, stillSame.Salience)
}
