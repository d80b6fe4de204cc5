// Package recall is the hybrid memory search ranker (spec.md §4.G): a
// parallel FTS + vector retrieval, salience-weighted merge, post-filter,
// and reinforcement side effects layered over internal/store and
// internal/memory.
package recall

import "github.com/JoeyEamigh/ccengram/internal/store"

// Mode selects which retrieval side(s) run.
type Mode string

const (
	ModeHybrid  Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// MatchType records which side(s) of the hybrid search contributed to a
// result (spec.md §8 "Match-type correctness").
type MatchType string

const (
	MatchBoth     MatchType = "both"
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
)

// Weights is the scoring profile for Request.Weights; the zero value
// selects DefaultWeights.
type Weights struct {
	Similarity float64
	FTS        float64
	Salience   float64
	Recency    float64
	Access     float64
}

// DefaultWeights is the one profile declared in spec.md §4.G step 5,
// "declared once and used throughout."
var DefaultWeights = Weights{
	Similarity: 0.35,
	FTS:        0.25,
	Salience:   0.2,
	Recency:    0.1,
	Access:     0.1,
}

// Request is a single hybrid search call.
type Request struct {
	Query             string
	ProjectID         string
	Sector            store.Sector
	Tier              store.Tier
	MemoryType        store.MemoryType
	Limit             int
	MinSalience       float64
	IncludeSuperseded bool
	SessionID         string
	Mode              Mode
	Weights           *Weights
}

// Result is one ranked memory plus the provenance spec.md §4.G step 9
// requires.
type Result struct {
	Memory               *store.Memory
	Score                float64
	MatchType            MatchType
	SourceSession        *store.Session
	IsSuperseded         bool
	SupersededBy         *string
	RelatedMemoryCount   int
}
