package relationship

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

func newTestDB(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedMemory(t *testing.T, db store.Store, id, projectID, content string) *store.Memory {
	t.Helper()
	m := &store.Memory{
		ID: id, ProjectID: projectID, Content: content, ContentHash: id,
		Sector: store.SectorSemantic, Tier: store.TierProject, Importance: 0.5,
		Salience: store.SalienceCeil,
	}
	require.NoError(t, db.UpsertProject(context.Background(), &store.Project{ID: projectID, Path: "/p", Name: "p"}))
	require.NoError(t, db.CreateMemory(context.Background(), m))
	return m
}

// TestSupersedeBiTemporality is spec.md §8 scenario 2 (the supersede half).
func TestSupersedeBiTemporality(t *testing.T) {
	db := newTestDB(t)
	rels := New(db)
	ctx := context.Background()

	a := seedMemory(t, db, "a", "proj", "Old fact")
	b := seedMemory(t, db, "b", "proj", "New fact")

	_, err := rels.Supersede(ctx, a.ID, b.ID)
	require.NoError(t, err)

	oldAfter, err := db.GetMemory(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, oldAfter.ValidUntil)

	superseding, err := rels.GetSuperseding(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, superseding)
	assert.Equal(t, b.ID, superseding.ID)
}

func TestSupersedeDoesNotReopenAlreadySuperseded(t *testing.T) {
	db := newTestDB(t)
	rels := New(db)
	ctx := context.Background()

	a := seedMemory(t, db, "a", "proj", "Old fact")
	b := seedMemory(t, db, "b", "proj", "New fact")
	c := seedMemory(t, db, "c", "proj", "Even newer fact")

	_, err := rels.Supersede(ctx, a.ID, b.ID)
	require.NoError(t, err)

	firstValidUntil, err := db.GetMemory(ctx, a.ID)
	require.NoError(t, err)

	_, err = rels.Supersede(ctx, a.ID, c.ID)
	require.Error(t, err)

	secondLook, err := db.GetMemory(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, firstValidUntil.ValidUntil, secondLook.ValidUntil)
}
