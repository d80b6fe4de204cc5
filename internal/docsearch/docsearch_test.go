package docsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.UpsertProject(context.Background(), &store.Project{ID: "p", Path: "/p", Name: "p"}))
	return NewEngine(db, nil), db
}

func seedDocument(t *testing.T, db store.Store, id, path, content string, isCode bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.UpsertDocument(ctx, &store.Document{
		ID: id, ProjectID: "p", Path: path, Language: "go", IsCode: isCode, FullContent: content,
	}))
	require.NoError(t, db.ReplaceChunks(ctx, id, []*store.DocumentChunk{
		{ID: id + "-c0", DocumentID: id, ChunkIndex: 0, Content: content, StartLine: 1, EndLine: 1},
	}))
}

func TestSearchFTSOnlyWithoutEmbedder(t *testing.T) {
	eng, db := newTestEngine(t)
	seedDocument(t, db, "d1", "main.go", "func main() { connectPostgres() }", true)
	seedDocument(t, db, "d2", "README.md", "This project talks about widgets", false)

	results, err := eng.Search(context.Background(), Request{Query: "postgres", ProjectID: "p"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "d1", results[0].Document.ID)
	require.Equal(t, 1, results[0].BM25Rank)
	require.Equal(t, 0, results[0].VecRank)
}

func TestSearchCodeOnlyFilter(t *testing.T) {
	eng, db := newTestEngine(t)
	seedDocument(t, db, "d1", "main.go", "widgets are assembled here", true)
	seedDocument(t, db, "d2", "README.md", "widgets are documented here", false)

	results, err := eng.Search(context.Background(), Request{Query: "widgets", ProjectID: "p", CodeOnly: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Document.IsCode)
}

func TestSearchNoHitsReturnsEmpty(t *testing.T) {
	eng, db := newTestEngine(t)
	seedDocument(t, db, "d1", "main.go", "func main() {}", true)

	results, err := eng.Search(context.Background(), Request{Query: "nonexistentterm", ProjectID: "p"})
	require.NoError(t, err)
	require.Empty(t, results)
}
