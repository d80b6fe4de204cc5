package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	p := &Project{ID: uuid.NewString(), Path: "/tmp/demo", Name: "demo", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.UpsertProject(ctx, p))

	got, err := s.GetProjectByPath(ctx, "/tmp/demo")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "demo", got.Name)

	_, err = s.GetProjectByPath(ctx, "/nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertProjectIsIdempotentByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	now := time.Now()
	p := &Project{ID: id, Path: "/tmp/a", Name: "a", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.UpsertProject(ctx, p))

	p.Name = "a-renamed"
	require.NoError(t, s.UpsertProject(ctx, p))

	got, err := s.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a-renamed", got.Name)
}

func TestStartSessionEndsPriorActiveSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	projectID := uuid.NewString()
	first := &Session{ID: uuid.NewString(), ProjectID: projectID, StartedAt: time.Now()}
	require.NoError(t, s.StartSession(ctx, first))

	active, err := s.GetActiveSession(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	second := &Session{ID: uuid.NewString(), ProjectID: projectID, StartedAt: time.Now()}
	require.NoError(t, s.StartSession(ctx, second))

	active, err = s.GetActiveSession(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	prior, err := s.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.NotNil(t, prior.EndedAt)
}

func TestEndSessionRecordsSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	projectID := uuid.NewString()
	sess := &Session{ID: uuid.NewString(), ProjectID: projectID, StartedAt: time.Now()}
	require.NoError(t, s.StartSession(ctx, sess))

	summary := "did some work"
	require.NoError(t, s.EndSession(ctx, sess.ID, time.Now(), &summary))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Summary)
	assert.Equal(t, summary, *got.Summary)
}
