package recall

import (
	"context"
	"fmt"
	"sort"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// Timeline is the ordered window of memories immediately surrounding an
// anchor memory, per spec.md §4.G's "Timeline" operation.
type Timeline struct {
	Anchor  *store.Memory
	Before  []*store.Memory
	After   []*store.Memory
}

// GetTimeline fetches the anchor (failing if it's missing or deleted),
// then the depthBefore memories in the same project created strictly
// before it (newest-to-anchor order reversed to oldest-first) and the
// depthAfter memories created strictly after it (oldest-first).
//
// store.Store has no dedicated "memories around a timestamp" query, so
// this pulls the project's memories once (ordered by created_at, the
// store's natural insertion order) and slices around the anchor in Go;
// a project bounded to a reasonable memory count makes this adequate
// without a new DAO method.
func (e *Engine) GetTimeline(ctx context.Context, anchorID string, depthBefore, depthAfter int) (*Timeline, error) {
	anchor, err := e.db.GetMemory(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	if anchor == nil || anchor.IsDeleted {
		return nil, fmt.Errorf("recall: anchor memory %q not found", anchorID)
	}

	all, err := e.db.ListMemories(ctx, store.MemoryListFilter{
		ProjectID: anchor.ProjectID,
		OrderBy:   "created_at",
	})
	if err != nil {
		return nil, err
	}
	// ListMemories orders created_at DESC; sort ascending for timeline math.
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	var beforeAll, afterAll []*store.Memory
	for _, m := range all {
		if m.ID == anchor.ID || m.IsDeleted {
			continue
		}
		if m.CreatedAt.Before(anchor.CreatedAt) {
			beforeAll = append(beforeAll, m)
		} else if m.CreatedAt.After(anchor.CreatedAt) {
			afterAll = append(afterAll, m)
		}
	}

	before := lastN(beforeAll, depthBefore)
	after := firstN(afterAll, depthAfter)

	return &Timeline{Anchor: anchor, Before: before, After: after}, nil
}

func lastN(ms []*store.Memory, n int) []*store.Memory {
	if n <= 0 || len(ms) == 0 {
		return nil
	}
	if n >= len(ms) {
		return ms
	}
	return ms[len(ms)-n:]
}

func firstN(ms []*store.Memory, n int) []*store.Memory {
	if n <= 0 || len(ms) == 0 {
		return nil
	}
	if n >= len(ms) {
		return ms
	}
	return ms[:n]
}
