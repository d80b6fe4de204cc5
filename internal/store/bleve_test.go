package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBleveDocIndex_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "docs.bleve")

	idx, err := OpenBleveDocIndex(dir)
	require.NoError(t, err)
	defer idx.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBleveDocIndex_IndexSearchDelete(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenBleveDocIndex(filepath.Join(t.TempDir(), "docs.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index("doc-1", "proj-1", "func ParseConfig reads the project configuration"))
	require.NoError(t, idx.Index("doc-2", "proj-1", "func WriteConfig serializes settings back to disk"))
	require.NoError(t, idx.Index("doc-3", "proj-2", "func ParseConfig for a different project"))

	hits, err := idx.Search(ctx, "proj-1", "ParseConfig", 10)
	require.NoError(t, err)
	assert.Contains(t, hits, "doc-1")
	assert.NotContains(t, hits, "doc-3", "search must stay scoped to the requesting project")

	require.NoError(t, idx.Delete("doc-1"))
	hits, err = idx.Search(ctx, "proj-1", "ParseConfig", 10)
	require.NoError(t, err)
	assert.NotContains(t, hits, "doc-1")
}

func TestOpenWithBackend_Sqlite(t *testing.T) {
	s, err := OpenWithBackend("", "sqlite")
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.docFTS)
}

func TestOpenWithBackend_Bleve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	s, err := OpenWithBackend(path, "bleve")
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, s.docFTS)

	info, err := os.Stat(path + ".bleve")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestUpsertDocument_MirrorsIntoBleveBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")
	s, err := OpenWithBackend(path, "bleve")
	require.NoError(t, err)
	defer s.Close()

	doc := &Document{
		ID:          "doc-1",
		ProjectID:   "proj-1",
		Path:        "main.go",
		Language:    "go",
		FullContent: "package main\n\nfunc main() {}\n",
	}
	require.NoError(t, s.UpsertDocument(ctx, doc))

	hits, err := s.SearchDocumentsFTS(ctx, "proj-1", "package", 10)
	require.NoError(t, err)
	assert.Contains(t, hits, "doc-1")

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))
	hits, err = s.SearchDocumentsFTS(ctx, "proj-1", "package", 10)
	require.NoError(t, err)
	assert.NotContains(t, hits, "doc-1")
}
