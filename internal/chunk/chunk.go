// Package chunk splits a source file into language-tagged, boundary-aware
// chunks (spec.md §4.H). It is a sliding-window line chunker driven by
// per-language regex boundary families, not an AST parser: the only input
// it needs per language is a list of (regex, chunk type, symbol extractor)
// triples.
package chunk

import (
	"fmt"
	"strings"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// Size constants (spec.md §4.H).
const (
	TargetLines   = 50
	MaxLines      = 100
	MinLines      = 5
	CharsPerToken = 4
)

// Chunk is the chunker's output unit; store.DocumentChunk is built from it
// once a Document row exists to attach it to.
type Chunk struct {
	Content        string
	StartLine      int // 1-based, inclusive
	EndLine        int // 1-based, inclusive
	ChunkType      store.ChunkType
	Symbols        []string
	TokensEstimate int
}

// Chunker turns file content into chunks for one language.
type Chunker interface {
	Chunk(content, language string) ([]Chunk, error)
}

// BoundaryChunker implements spec.md §4.H's sliding-window algorithm.
type BoundaryChunker struct {
	registry *LanguageRegistry
}

func NewBoundaryChunker() *BoundaryChunker {
	return &BoundaryChunker{registry: DefaultLanguageRegistry()}
}

var _ Chunker = (*BoundaryChunker)(nil)

// Chunk splits content into chunks. A file at or under MaxLines becomes a
// single chunk regardless of language.
func (c *BoundaryChunker) Chunk(content, language string) ([]Chunk, error) {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil, nil
	}

	if len(lines) <= MaxLines {
		return []Chunk{c.buildChunk(lines, 0, len(lines)-1, language)}, nil
	}

	fam, ok := c.registry.Get(language)
	var boundaries []int
	if ok {
		boundaries = findBoundaries(lines, fam)
	}

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := chooseEnd(lines, start, boundaries)
		chunks = append(chunks, c.buildChunk(lines, start, end, language))
		start = end + 1
	}
	return chunks, nil
}

// chooseEnd picks the 0-based inclusive end line for a window starting at
// start, per spec.md §4.H: prefer the first boundary at or after
// start+TargetLines; else the last boundary >= start+MinLines; else
// findBestBreakPoint.
func chooseEnd(lines []string, start int, boundaries []int) int {
	hardLimit := start + MaxLines - 1
	if hardLimit >= len(lines) {
		hardLimit = len(lines) - 1
	}
	if hardLimit <= start {
		return hardLimit
	}

	targetFloor := start + TargetLines
	var firstAtOrAfterTarget = -1
	var lastAboveMin = -1
	for _, b := range boundaries {
		if b <= start || b > hardLimit {
			continue
		}
		if b >= targetFloor && firstAtOrAfterTarget == -1 {
			firstAtOrAfterTarget = b
		}
		if b >= start+MinLines {
			lastAboveMin = b
		}
	}

	if firstAtOrAfterTarget != -1 {
		return firstAtOrAfterTarget
	}
	if lastAboveMin != -1 {
		return lastAboveMin
	}
	return findBestBreakPoint(lines, start, hardLimit)
}

// findBestBreakPoint scans forward from start+MinLines up to hardLimit for
// a natural break (blank line or a block-closing line), then backward from
// hardLimit past start+MinLines for the same. Falls back to hardLimit.
func findBestBreakPoint(lines []string, start, hardLimit int) int {
	lo := start + MinLines
	if lo > hardLimit {
		return hardLimit
	}

	for i := lo; i <= hardLimit; i++ {
		if isNaturalBreak(lines[i]) {
			return i
		}
	}
	for i := hardLimit; i >= lo; i-- {
		if isNaturalBreak(lines[i]) {
			return i
		}
	}
	return hardLimit
}

func isNaturalBreak(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	return trimmed == "}" || trimmed == "};" || trimmed == "end" || trimmed == "end;"
}

// buildChunk materializes a Chunk from a [start,end] 0-based inclusive
// line range.
func (c *BoundaryChunker) buildChunk(lines []string, start, end int, language string) Chunk {
	if end >= len(lines) {
		end = len(lines) - 1
	}
	body := strings.Join(lines[start:end+1], "\n")
	fam, _ := c.registry.Get(language)
	return Chunk{
		Content:        body,
		StartLine:      start + 1,
		EndLine:        end + 1,
		ChunkType:      classifyChunkType(lines[start:min(end+1, start+5)], fam),
		Symbols:        extractSymbols(lines[start:end+1], fam),
		TokensEstimate: estimateTokens(body),
	}
}

func estimateTokens(body string) int {
	if body == "" {
		return 0
	}
	return (len(body) + CharsPerToken - 1) / CharsPerToken
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// classifyChunkType inspects the first few lines of a chunk to derive a
// chunk_type; defaults to block.
func classifyChunkType(head []string, fam *LanguageFamily) store.ChunkType {
	if fam == nil {
		return store.ChunkTypeBlock
	}
	for _, line := range head {
		for _, b := range fam.Boundaries {
			if b.Match.MatchString(line) {
				return b.ChunkType
			}
		}
	}
	return store.ChunkTypeBlock
}

// findBoundaries returns 0-based line indices where any boundary regex
// family for the language matches.
func findBoundaries(lines []string, fam *LanguageFamily) []int {
	var out []int
	for i, line := range lines {
		for _, b := range fam.Boundaries {
			if b.Match.MatchString(line) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// extractSymbols runs each boundary's symbol extractor over every line in
// the chunk, deduplicating by name.
func extractSymbols(lines []string, fam *LanguageFamily) []string {
	if fam == nil {
		return []string{}
	}
	seen := map[string]bool{}
	var out []string
	for _, line := range lines {
		for _, b := range fam.Boundaries {
			if name, ok := b.ExtractSymbol(line); ok && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// ToDocumentChunks converts chunker output into store rows ready for
// store.Store.ReplaceChunks, stamping content offsets and chunk index.
func ToDocumentChunks(documentID string, chunks []Chunk) []*store.DocumentChunk {
	out := make([]*store.DocumentChunk, len(chunks))
	offset := 0
	for i, c := range chunks {
		out[i] = &store.DocumentChunk{
			ID:             fmt.Sprintf("%s:%d", documentID, i),
			DocumentID:     documentID,
			ChunkIndex:     i,
			Content:        c.Content,
			StartOffset:    offset,
			EndOffset:      offset + len(c.Content),
			TokensEstimate: c.TokensEstimate,
			StartLine:      c.StartLine,
			EndLine:        c.EndLine,
			ChunkType:      c.ChunkType,
			Symbols:        c.Symbols,
		}
		offset += len(c.Content) + 1 // account for the joining newline
	}
	return out
}
