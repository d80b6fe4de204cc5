package recall

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JoeyEamigh/ccengram/internal/embed"
	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// ReinforceAmount is the small reinforcement applied to every surviving
// search result (spec.md §4.G step 7).
const ReinforceAmount = 0.02

// Engine runs hybrid memory search over a project (spec.md §4.G).
type Engine struct {
	db       store.Store
	mem      *memory.Store
	embedder *embed.EmbeddingService // nil degrades hybrid/semantic to keyword
}

func NewEngine(db store.Store, mem *memory.Store, embedder *embed.EmbeddingService) *Engine {
	return &Engine{db: db, mem: mem, embedder: embedder}
}

type candidate struct {
	memoryID   string
	ftsRank    float64
	similarity float32
	hasFTS     bool
	hasVector  bool
}

// Search runs the full spec.md §4.G algorithm.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}

	// Step 1: degrade hybrid/semantic to keyword when no embedder.
	if e.embedder == nil && mode != ModeKeyword {
		slog.Warn("recall: no embedding service configured, degrading to keyword search")
		mode = ModeKeyword
	}

	// Step 2: concurrent FTS + vector retrieval.
	fetchLimit := 2 * limit
	candidates := map[string]*candidate{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if mode != ModeSemantic {
		g.Go(func() error {
			hits, err := e.db.SearchMemoriesFTS(gctx, req.ProjectID, req.Query, fetchLimit)
			if err != nil {
				return fmt.Errorf("fts search: %w", err)
			}
			mu.Lock()
			for id, rank := range hits {
				c := candidates[id]
				if c == nil {
					c = &candidate{memoryID: id}
					candidates[id] = c
				}
				c.ftsRank = rank
				c.hasFTS = true
			}
			mu.Unlock()
			return nil
		})
	}
	if mode != ModeKeyword {
		g.Go(func() error {
			res, err := e.embedder.Embed(gctx, req.Query)
			if err != nil {
				return fmt.Errorf("embedding query: %w", err)
			}
			hits, err := e.db.SearchMemoryVectors(gctx, req.ProjectID, res.Model, res.Vector, res.Dimensions, fetchLimit)
			if err != nil {
				return fmt.Errorf("vector search: %w", err)
			}
			mu.Lock()
			for id, sim := range hits {
				c := candidates[id]
				if c == nil {
					c = &candidate{memoryID: id}
					candidates[id] = c
				}
				c.similarity = sim
				c.hasVector = true
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	// Step 3/4: fetch candidate memories once, apply post-filters.
	maxFTS := 0.0
	for _, c := range candidates {
		if c.ftsRank > maxFTS {
			maxFTS = c.ftsRank
		}
	}

	weights := DefaultWeights
	if req.Weights != nil {
		weights = *req.Weights
	}
	now := time.Now()

	var scored []Result
	for id, c := range candidates {
		m, err := e.db.GetMemory(ctx, id)
		if err != nil || m == nil || m.IsDeleted {
			continue
		}
		if req.Sector != "" && m.Sector != req.Sector {
			continue
		}
		if req.Tier != "" && m.Tier != req.Tier {
			continue
		}
		if req.MemoryType != "" && (m.MemoryType == nil || *m.MemoryType != req.MemoryType) {
			continue
		}
		if m.Salience < req.MinSalience {
			continue
		}
		if !req.IncludeSuperseded && m.ValidUntil != nil {
			continue
		}
		if req.SessionID != "" {
			linked, err := e.db.GetMemoriesBySession(ctx, req.SessionID)
			if err == nil && !containsMemory(linked, id) {
				continue
			}
		}

		normFTS := 0.0
		if maxFTS > 0 {
			normFTS = c.ftsRank / maxFTS
		}
		recencyBoost := recency(now, m.UpdatedAt)
		accessBoost := math.Min(1, float64(m.AccessCount)/10)

		score := weights.Similarity*float64(c.similarity) +
			weights.FTS*normFTS +
			weights.Salience*m.Salience +
			weights.Recency*recencyBoost +
			weights.Access*accessBoost

		mt := MatchKeyword
		switch {
		case c.hasFTS && c.hasVector:
			mt = MatchBoth
		case c.hasVector:
			mt = MatchSemantic
		}

		scored = append(scored, Result{Memory: m, Score: score, MatchType: mt})
	}

	// Step 6: sort by score desc, tie-break by updated_at desc.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.UpdatedAt.After(scored[j].Memory.UpdatedAt)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	// Step 7: reinforcement side effects (not observable by this result set).
	for i := range scored {
		id := scored[i].Memory.ID
		if _, err := e.mem.Reinforce(ctx, id, ReinforceAmount); err != nil {
			slog.Warn("recall: reinforcing search hit failed", "memory_id", id, "error", err)
		}
		if req.SessionID != "" {
			if err := e.mem.LinkToSession(ctx, id, req.SessionID, store.UsageRecalled); err != nil {
				slog.Warn("recall: linking search hit to session failed", "memory_id", id, "error", err)
			}
		}
	}

	// Step 8: per-survivor provenance, fetched in three batch queries (one
	// each for source session, superseding memory, related count) instead
	// of three queries per result.
	ids := make([]string, len(scored))
	for i := range scored {
		ids[i] = scored[i].Memory.ID
	}

	sourceSessions, err := e.db.GetSourceSessions(ctx, ids)
	if err != nil {
		slog.Warn("recall: batch source-session fetch failed", "error", err)
		sourceSessions = map[string]*store.Session{}
	}
	supersedingBy, err := e.db.GetSupersedingMap(ctx, ids)
	if err != nil {
		slog.Warn("recall: batch superseding fetch failed", "error", err)
		supersedingBy = map[string]*store.Memory{}
	}
	relatedCounts, err := e.db.CountRelatedBatch(ctx, ids)
	if err != nil {
		slog.Warn("recall: batch related-count fetch failed", "error", err)
		relatedCounts = map[string]int{}
	}

	for i := range scored {
		m := scored[i].Memory
		if sess, ok := sourceSessions[m.ID]; ok {
			scored[i].SourceSession = sess
		}
		if m.ValidUntil != nil {
			scored[i].IsSuperseded = true
			if superseding, ok := supersedingBy[m.ID]; ok && superseding != nil {
				scored[i].SupersededBy = &superseding.ID
			}
		}
		scored[i].RelatedMemoryCount = relatedCounts[m.ID]
	}

	return scored, nil
}

// recency maps an updated_at timestamp to a [0,1] boost that decays over
// roughly a month; the spec names the term but leaves its shape
// unspecified (spec.md §9 "valid_from semantics... unspecified in the
// ranker" applies the same ambiguity here — we pick a smooth decay).
func recency(now, updatedAt time.Time) float64 {
	days := now.Sub(updatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / 30)
}

func containsMemory(ms []*store.Memory, id string) bool {
	for _, m := range ms {
		if m.ID == id {
			return true
		}
	}
	return false
}
