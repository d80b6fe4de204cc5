package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedProject(t *testing.T, db store.Store) string {
	t.Helper()
	p := &store.Project{ID: "proj-1", Path: "/tmp/proj-1", Name: "proj-1"}
	require.NoError(t, db.UpsertProject(context.Background(), p))
	return p.ID
}

func TestStartEndsPriorActiveSession(t *testing.T) {
	db := newTestStore(t)
	mgr := New(db, memory.New(db, nil))
	ctx := context.Background()
	projectID := seedProject(t, db)

	first, err := mgr.Start(ctx, projectID, "")
	require.NoError(t, err)

	second, err := mgr.Start(ctx, projectID, "")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	active, err := mgr.Active(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	reloadedFirst, err := mgr.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloadedFirst.EndedAt)
}

func TestEndPromotesHighSalienceSessionMemories(t *testing.T) {
	db := newTestStore(t)
	mem := memory.New(db, nil)
	mgr := New(db, mem)
	ctx := context.Background()
	projectID := seedProject(t, db)

	sess, err := mgr.Start(ctx, projectID, "")
	require.NoError(t, err)

	m, err := mem.Create(ctx, memory.CreateRequest{
		ProjectID: projectID,
		Content:   "this project uses sqlite for storage",
		SessionID: sess.ID,
	})
	require.NoError(t, err)
	require.Equal(t, store.TierSession, m.Tier)
	require.GreaterOrEqual(t, m.Salience, TierPromotionThreshold)

	require.NoError(t, mgr.End(ctx, sess.ID, nil))

	promoted, err := mem.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TierProject, promoted.Tier)
}

func TestEndLeavesLowSalienceMemoriesAtSessionTier(t *testing.T) {
	db := newTestStore(t)
	mem := memory.New(db, nil)
	mgr := New(db, mem)
	ctx := context.Background()
	projectID := seedProject(t, db)

	sess, err := mgr.Start(ctx, projectID, "")
	require.NoError(t, err)

	m, err := mem.Create(ctx, memory.CreateRequest{
		ProjectID: projectID,
		Content:   "a minor, easily-forgotten aside",
		SessionID: sess.ID,
	})
	require.NoError(t, err)
	_, err = mem.Deemphasize(ctx, m.ID, 0.7)
	require.NoError(t, err)

	require.NoError(t, mgr.End(ctx, sess.ID, nil))

	unchanged, err := mem.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TierSession, unchanged.Tier)
}
