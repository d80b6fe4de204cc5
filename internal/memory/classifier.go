package memory

import (
	"regexp"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// sectorPattern is one regex family contributing to a sector's match score.
type sectorPattern struct {
	sector store.Sector
	res    []*regexp.Regexp
}

// classifierPatterns is scored in declaration order; ties are broken by
// sectorPriority, not by this order (spec.md §4.D).
var classifierPatterns = []sectorPattern{
	{
		sector: store.SectorEmotional,
		res: mustCompileAll(
			`\bfrustrat\w*\b`, `\bannoy\w*\b`, `\blove\b`, `\bhate\b`,
			`\bexcit\w*\b`, `\bworried?\b`, `\bconfus\w*\b`, `\bhappy\b`,
			`\bstruggl\w*\b`, `\bpain\w*\b`, `\brelie\w*\b`, `\bglad\b`,
		),
	},
	{
		sector: store.SectorReflective,
		res: mustCompileAll(
			`\bthis codebase\b`, `\bin general\b`, `\bi('ve| have) noticed\b`,
			`\bfavors?\b`, `\bprefers?\b`, `\bconvention\w*\b`, `\bphilosophy\b`,
			`\btends? to\b`, `\bover\s+\w+\b.*\brather than\b`, `\bcomposition over\b`,
		),
	},
	{
		sector: store.SectorEpisodic,
		res: mustCompileAll(
			`\buser asked\b`, `\bi asked\b`, `\bwe discussed\b`, `\byesterday\b`,
			`\bearlier\b`, `\bjust (now|did)\b`, `\blast (time|session)\b`,
			`\btoday\b`, `\brequested\b`,
		),
	},
	{
		sector: store.SectorProcedural,
		res: mustCompileAll(
			`\bto deploy\b`, `\bfirst\b.*\bthen\b`, `\bstep \d`, `\brun\b.*\bbuild\b`,
			`\bpush to\b`, `\bhow to\b`, `\bprocess (is|for)\b`, `\brecipe\b`,
			`\bworkflow\b`, `\bfollow these steps\b`,
		),
	},
	{
		sector: store.SectorSemantic,
		res: mustCompileAll(
			`\bis located (in|at)\b`, `\bhandler\b`, `\bfunction\b`, `\breturns?\b`,
			`\bclass\b`, `\bmodule\b`, `\bdefines?\b`, `\bimplements?\b`,
			`\bthe .* is\b`,
		),
	},
}

// sectorPriority breaks ties among equally-scored sectors (spec.md §4.D):
// emotional > reflective > episodic > procedural > semantic.
var sectorPriority = map[store.Sector]int{
	store.SectorEmotional:  5,
	store.SectorReflective: 4,
	store.SectorEpisodic:   3,
	store.SectorProcedural: 2,
	store.SectorSemantic:   1,
}

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// ClassifySector scores content against each sector's regex family (total
// match count, case-insensitive, global) and returns the highest scorer,
// breaking ties by sectorPriority. An all-zero score defaults to semantic.
func ClassifySector(content string) store.Sector {
	best := store.SectorSemantic
	bestScore := 0
	for _, p := range classifierPatterns {
		score := 0
		for _, re := range p.res {
			score += len(re.FindAllStringIndex(content, -1))
		}
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && sectorPriority[p.sector] > sectorPriority[best]) {
			bestScore = score
			best = p.sector
		}
	}
	if bestScore == 0 {
		return store.SectorSemantic
	}
	return best
}

// conceptWordRe extracts bare identifiers and dotted/slashed paths as crude
// "concepts" — capitalized words, snake_case and camelCase identifiers, and
// file-path-like tokens. Deduplicated, order preserved.
var conceptWordRe = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9_./-]{2,}\b`)

// ExtractConcepts pulls a small set of salient tokens (identifiers, paths)
// out of content for the memory's concepts column.
func ExtractConcepts(content string) []string {
	matches := conceptWordRe.FindAllString(content, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if looksLikeStopword(m) {
			continue
		}
		key := m
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
		if len(out) >= 16 {
			break
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "have": true, "are": true, "was": true,
	"were": true, "been": true, "has": true, "not": true, "but": true,
	"you": true, "your": true, "will": true, "can": true, "should": true,
}

func looksLikeStopword(s string) bool {
	lower := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower = append(lower, c)
	}
	return stopwords[string(lower)]
}
