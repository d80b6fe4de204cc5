package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeyEamigh/ccengram/internal/chunk"
	"github.com/JoeyEamigh/ccengram/internal/scanner"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// ParserDeps are the parser stage's collaborators, shared read-only across
// its worker pool.
type ParserDeps struct {
	DB        store.Store
	ProjectID string
}

// runParsers owns a worker pool (~CPU cores), each with its own chunker
// instance, consuming PipelineContent and emitting PipelineChunks (spec.md
// §4.J). in must be closed by the caller; out is closed once every worker
// has drained.
func runParsers(ctx context.Context, deps ParserDeps, workers int, in <-chan PipelineContent, out chan<- PipelineChunks) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			chunker := chunk.NewBoundaryChunker()
			for pc := range in {
				select {
				case <-ctx.Done():
					return
				default:
				}

				result := parseOne(ctx, deps, chunker, pc)

				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()
	close(out)
}

func parseOne(ctx context.Context, deps ParserDeps, chunker *chunk.BoundaryChunker, pc PipelineContent) PipelineChunks {
	if pc.Err != nil {
		return PipelineChunks{File: pc.File, Err: pc.Err}
	}

	chunks, err := chunker.Chunk(pc.Content, pc.File.Language)
	if err != nil {
		return PipelineChunks{File: pc.File, Err: fmt.Errorf("chunking %s: %w", pc.File.Path, err)}
	}

	isCode := scanner.DetectContentType(pc.File.Language) == scanner.ContentTypeCode

	existing, err := deps.DB.GetDocumentByPath(ctx, deps.ProjectID, pc.File.RelativePath)
	documentID := uuid.NewString()
	if err == nil && existing != nil {
		documentID = existing.ID
	}

	rows := chunk.ToDocumentChunks(documentID, chunks)
	lineCount := 0
	if len(rows) > 0 {
		lineCount = rows[len(rows)-1].EndLine
	}

	doc := &store.Document{
		ID:          documentID,
		ProjectID:   deps.ProjectID,
		Path:        pc.File.RelativePath,
		Language:    pc.File.Language,
		LineCount:   lineCount,
		Checksum:    contentHash(pc.Content),
		IsCode:      isCode,
		FullContent: pc.Content,
	}

	reuseFrom := map[int]string{}
	var needsEmbed []int

	// Embedding reuse is enabled for code, disabled for prose/docs (spec.md
	// §4.J): a one-line edit deep in a markdown file shifts every chunk
	// boundary below it, so content-hash matching rarely pays off there,
	// while code's function/class boundaries are comparatively stable.
	if isCode && pc.File.OldContent != nil && existing != nil {
		if oldRows, err := deps.DB.GetChunksByDocument(ctx, existing.ID); err == nil {
			byHash := map[string]string{}
			for _, old := range oldRows {
				byHash[contentHash(old.Content)] = old.ID
			}
			for i, r := range rows {
				if oldID, ok := byHash[contentHash(r.Content)]; ok {
					reuseFrom[i] = oldID
					continue
				}
				needsEmbed = append(needsEmbed, i)
			}
		}
	}
	if len(reuseFrom) == 0 {
		needsEmbed = needsEmbed[:0]
		for i := range rows {
			needsEmbed = append(needsEmbed, i)
		}
	}

	return PipelineChunks{
		File:                pc.File,
		Document:            doc,
		Chunks:              chunks,
		Rows:                rows,
		ReuseFrom:           reuseFrom,
		IndicesNeedingEmbed: needsEmbed,
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimRight(content, "\n")))
	return hex.EncodeToString(sum[:])
}
