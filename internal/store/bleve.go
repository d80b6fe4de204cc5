package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// BleveDocIndex is the alternate/legacy full-text engine for document
// chunks, selected via config Search.BM25Backend = "bleve" instead of the
// default SQLite FTS5 virtual table (spec.md §4.A names one FTS mirror;
// SPEC_FULL.md's domain stack keeps bleve alive as the non-default engine
// the teacher originally shipped, before it was replaced by FTS5 for
// concurrent multi-process access). Grounded directly on the teacher's
// internal/store/bm25.go: same bleve.Index handle, same match-query-on-
// "content" search shape, same create-or-open-on-disk behavior. The
// teacher's custom code tokenizer/stop-filter and corruption-recovery
// machinery are dropped: spec.md's chunker already tokenizes source text
// before it ever reaches an FTS engine, and this is a non-default fallback
// path, not the store's primary durability surface.
type BleveDocIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// bleveDoc is the shape indexed per document row.
type bleveDoc struct {
	ProjectID string `json:"project_id"`
	Content   string `json:"content"`
}

// OpenBleveDocIndex creates or opens a bleve index rooted at dir.
func OpenBleveDocIndex(dir string) (*BleveDocIndex, error) {
	idx, err := bleve.Open(dir)
	if err == nil {
		return &BleveDocIndex{index: idx, path: dir}, nil
	}
	if err != bleve.ErrorIndexPathDoesNotExist {
		return nil, fmt.Errorf("opening bleve document index: %w", err)
	}

	if dir != "" {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating bleve index directory: %w", err)
		}
	}

	mapping := bleve.NewIndexMapping()
	if dir == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		idx, err = bleve.New(dir, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("creating bleve document index: %w", err)
	}
	return &BleveDocIndex{index: idx, path: dir}, nil
}

// Index upserts one document's full content for keyword search.
func (b *BleveDocIndex) Index(documentID, projectID, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Index(documentID, bleveDoc{ProjectID: projectID, Content: content})
}

// Delete removes a document from the index. Deleting a document that was
// never indexed is a no-op, matching bleve's own semantics.
func (b *BleveDocIndex) Delete(documentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Delete(documentID)
}

// Search returns document_id -> score for the top `limit` matches within
// projectID, shaped identically to SQLiteStore.SearchDocumentsFTS so
// docsearch.Engine can treat either backend interchangeably.
func (b *BleveDocIndex) Search(ctx context.Context, projectID, query string, limit int) (map[string]float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if query == "" {
		return map[string]float64{}, nil
	}

	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")
	// A phrase query keeps "proj-1" from matching "proj-2": the analyzer
	// splits ids on '-', and a plain match query ORs the resulting terms.
	projectQuery := bleve.NewMatchPhraseQuery(projectID)
	projectQuery.SetField("project_id")

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(contentQuery, projectQuery))
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve document search: %w", err)
	}

	out := make(map[string]float64, len(result.Hits))
	for _, hit := range result.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

// Close releases the underlying index handle.
func (b *BleveDocIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
