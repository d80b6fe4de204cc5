package recall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/relationship"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store, *memory.Store) {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.UpsertProject(context.Background(), &store.Project{ID: "p", Path: "/p", Name: "p"}))
	mem := memory.New(db, nil)
	return NewEngine(db, mem, nil), db, mem
}

// TestHybridSearchGracefulDegrade is spec.md §8 scenario 4: with no
// embedding provider, search(mode=hybrid) returns keyword hits only.
func TestHybridSearchGracefulDegrade(t *testing.T) {
	eng, _, mem := newTestEngine(t)
	ctx := context.Background()

	_, err := mem.Create(ctx, memory.CreateRequest{ProjectID: "p", Content: "We rely on PostgreSQL for storage"})
	require.NoError(t, err)

	results, err := eng.Search(ctx, Request{Query: "PostgreSQL", ProjectID: "p", Mode: ModeHybrid})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, MatchKeyword, results[0].MatchType)
}

// TestSearchSupersededFiltering is spec.md §8 scenario 2 (the search half).
func TestSearchSupersededFiltering(t *testing.T) {
	eng, db, mem := newTestEngine(t)
	rels := relationship.New(db)
	ctx := context.Background()

	a, err := mem.Create(ctx, memory.CreateRequest{ProjectID: "p", Content: "Old fact about widgets"})
	require.NoError(t, err)
	b, err := mem.Create(ctx, memory.CreateRequest{ProjectID: "p", Content: "New fact about widgets"})
	require.NoError(t, err)
	_, err = rels.Supersede(ctx, a.ID, b.ID)
	require.NoError(t, err)

	withoutSuperseded, err := eng.Search(ctx, Request{Query: "widgets fact", ProjectID: "p", Mode: ModeKeyword})
	require.NoError(t, err)
	ids := idsOf(withoutSuperseded)
	assert.Contains(t, ids, b.ID)
	assert.NotContains(t, ids, a.ID)

	withSuperseded, err := eng.Search(ctx, Request{Query: "widgets fact", ProjectID: "p", Mode: ModeKeyword, IncludeSuperseded: true})
	require.NoError(t, err)
	var aResult *Result
	for i := range withSuperseded {
		if withSuperseded[i].Memory.ID == a.ID {
			aResult = &withSuperseded[i]
		}
	}
	require.NotNil(t, aResult)
	assert.True(t, aResult.IsSuperseded)
	require.NotNil(t, aResult.SupersededBy)
	assert.Equal(t, b.ID, *aResult.SupersededBy)
}

func TestSearchReinforcesSurvivors(t *testing.T) {
	eng, _, mem := newTestEngine(t)
	ctx := context.Background()

	m, err := mem.Create(ctx, memory.CreateRequest{ProjectID: "p", Content: "a reinforcement target"})
	require.NoError(t, err)
	before, err := mem.Get(ctx, m.ID)
	require.NoError(t, err)

	_, err = eng.Search(ctx, Request{Query: "reinforcement target", ProjectID: "p", Mode: ModeKeyword})
	require.NoError(t, err)

	after, err := mem.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Greater(t, after.AccessCount, before.AccessCount)
}

func TestTimelineOrdersBeforeAndAfter(t *testing.T) {
	eng, _, mem := newTestEngine(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		m, err := mem.Create(ctx, memory.CreateRequest{ProjectID: "p", Content: contentFor(i)})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	tl, err := eng.GetTimeline(ctx, ids[2], 2, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[2], tl.Anchor.ID)
	require.Len(t, tl.Before, 2)
	require.Len(t, tl.After, 2)
	assert.Equal(t, ids[0], tl.Before[0].ID)
	assert.Equal(t, ids[1], tl.Before[1].ID)
	assert.Equal(t, ids[3], tl.After[0].ID)
	assert.Equal(t, ids[4], tl.After[1].ID)
}

func contentFor(i int) string {
	return "distinct timeline memory number " + string(rune('a'+i))
}

func idsOf(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Memory.ID
	}
	return out
}
