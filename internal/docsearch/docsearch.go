// Package docsearch is the Code Indexing Pipeline's retrieval counterpart
// to internal/recall: a hybrid FTS + vector ranker over store.Document /
// store.DocumentChunk rather than store.Memory. spec.md names the index
// side (§4.J) but leaves code retrieval to the external surfaces (§6); this
// fuses the two result sets with Reciprocal Rank Fusion, adapted from the
// RRF formula in the teacher's pkg/searcher/fusion.go, rather than the
// salience-weighted blend internal/recall uses for memories (code chunks
// have no salience/access/recency signal to weight against).
package docsearch

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/JoeyEamigh/ccengram/internal/embed"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// FusionConfig holds the RRF constants, grounded on pkg/searcher's
// DefaultFusionConfig.
type FusionConfig struct {
	BM25Weight     float64
	SemanticWeight float64
	RRFConstant    int
}

// DefaultFusionConfig matches the teacher's balanced hybrid weighting.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{BM25Weight: 0.5, SemanticWeight: 0.5, RRFConstant: 60}
}

// Request is a single code/doc search call.
type Request struct {
	Query     string
	ProjectID string
	Limit     int
	CodeOnly  bool // restrict to Document.IsCode
	DocsOnly  bool // restrict to !Document.IsCode
}

// Result is one ranked document chunk.
type Result struct {
	Chunk    *store.DocumentChunk
	Document *store.Document
	Score    float64
	BM25Rank int // 1-indexed, 0 if absent from the FTS side
	VecRank  int // 1-indexed, 0 if absent from the vector side
}

// Engine runs hybrid document search over a project.
type Engine struct {
	db       store.Store
	embedder *embed.EmbeddingService
	config   FusionConfig
}

func NewEngine(db store.Store, embedder *embed.EmbeddingService) *Engine {
	return &Engine{db: db, embedder: embedder, config: DefaultFusionConfig()}
}

// WithFusionConfig overrides the RRF weighting.
func (e *Engine) WithFusionConfig(cfg FusionConfig) *Engine {
	e.config = cfg
	return e
}

type fusedDoc struct {
	docID       string
	score       float64
	bm25Rank    int
	vecRank     int
	bestChunkID string // set only when a vector hit contributed; "" falls back to chunk 0
}

// Search runs parallel FTS + vector retrieval, fuses with RRF, and resolves
// each winning document to its best-matching chunk.
//
// documents_fts keys by document id; document_vectors keys by chunk id, so
// vector hits are remapped to their owning document (via GetChunk) before
// the two rankings are fused into one document-id space.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	fetchLimit := limit * 2
	if fetchLimit < 20 {
		fetchLimit = 20
	}

	var ftsHits map[string]float64
	var vecHits map[string]float32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.db.SearchDocumentsFTS(gctx, req.ProjectID, req.Query, fetchLimit)
		if err != nil {
			return fmt.Errorf("documents fts search: %w", err)
		}
		ftsHits = hits
		return nil
	})
	if e.embedder != nil {
		g.Go(func() error {
			res, err := e.embedder.Embed(gctx, req.Query)
			if err != nil {
				// Degrade to FTS-only rather than failing the whole search
				// (mirrors internal/recall's embedder-unavailable fallback).
				return nil
			}
			hits, err := e.db.SearchDocumentVectors(gctx, req.ProjectID, res.Model, res.Vector, res.Dimensions, fetchLimit)
			if err != nil {
				return nil
			}
			vecHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docsFromFTS := rankByFloat64Desc(ftsHits)
	chunksFromVec := rankByFloat32Desc(vecHits)
	docsFromVec := e.remapChunksToDocs(ctx, chunksFromVec)

	fused := e.fuse(docsFromFTS, docsFromVec)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	return e.resolve(ctx, req, fused)
}

type ranked struct {
	id   string
	rank int // 1-indexed
}

func rankByFloat64Desc(hits map[string]float64) []ranked {
	ids := make([]string, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return hits[ids[i]] > hits[ids[j]] })
	out := make([]ranked, len(ids))
	for i, id := range ids {
		out[i] = ranked{id: id, rank: i + 1}
	}
	return out
}

func rankByFloat32Desc(hits map[string]float32) []ranked {
	ids := make([]string, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return hits[ids[i]] > hits[ids[j]] })
	out := make([]ranked, len(ids))
	for i, id := range ids {
		out[i] = ranked{id: id, rank: i + 1}
	}
	return out
}

// remapChunksToDocs resolves each ranked chunk id to its owning document,
// keeping the chunk's rank and remembering which chunk produced the hit.
func (e *Engine) remapChunksToDocs(ctx context.Context, chunkRanks []ranked) []fusedDoc {
	out := make([]fusedDoc, 0, len(chunkRanks))
	for _, r := range chunkRanks {
		chunk, err := e.db.GetChunk(ctx, r.id)
		if err != nil || chunk == nil {
			continue
		}
		out = append(out, fusedDoc{docID: chunk.DocumentID, bestChunkID: chunk.ID, vecRank: r.rank})
	}
	return out
}

// fuse applies the same RRF formula as pkg/searcher's FusionSearcher:
// score(d) = Σ weight_i / (k + rank_i), summed across the sides a document
// id appears on.
func (e *Engine) fuse(fromFTS []ranked, fromVec []fusedDoc) []fusedDoc {
	scores := map[string]*fusedDoc{}

	for _, r := range fromFTS {
		fd, ok := scores[r.id]
		if !ok {
			fd = &fusedDoc{docID: r.id}
			scores[r.id] = fd
		}
		fd.score += e.config.BM25Weight / float64(e.config.RRFConstant+r.rank)
		fd.bm25Rank = r.rank
	}
	for _, v := range fromVec {
		fd, ok := scores[v.docID]
		if !ok {
			fd = &fusedDoc{docID: v.docID}
			scores[v.docID] = fd
		}
		fd.score += e.config.SemanticWeight / float64(e.config.RRFConstant+v.vecRank)
		fd.vecRank = v.vecRank
		fd.bestChunkID = v.bestChunkID
	}

	out := make([]fusedDoc, 0, len(scores))
	for _, fd := range scores {
		out = append(out, *fd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].docID < out[j].docID
	})
	return out
}

// resolve maps fused rows back to their document + matching chunk: the
// vector side's exact chunk hit when present, otherwise the document's
// first chunk (an FTS-only hit has no single matching chunk — documents_fts
// indexes the whole file).
func (e *Engine) resolve(ctx context.Context, req Request, fused []fusedDoc) ([]Result, error) {
	out := make([]Result, 0, len(fused))
	for _, fd := range fused {
		doc, err := e.db.GetDocument(ctx, fd.docID)
		if err != nil || doc == nil {
			continue
		}
		if req.CodeOnly && !doc.IsCode {
			continue
		}
		if req.DocsOnly && doc.IsCode {
			continue
		}

		var chunk *store.DocumentChunk
		if fd.bestChunkID != "" {
			chunk, _ = e.db.GetChunk(ctx, fd.bestChunkID)
		}
		if chunk == nil {
			chunks, err := e.db.GetChunksByDocument(ctx, doc.ID)
			if err != nil || len(chunks) == 0 {
				continue
			}
			chunk = chunks[0]
		}

		out = append(out, Result{
			Chunk:    chunk,
			Document: doc,
			Score:    fd.score,
			BM25Rank: fd.bm25Rank,
			VecRank:  fd.vecRank,
		})
	}
	return out, nil
}
