// Package pipeline is the bounded, backpressured, multi-stage streaming
// indexing pipeline (spec.md §4.J): Scanner → Reader → Parser → Embedder →
// Writer, connected by bounded channels so a slow downstream stage
// naturally blocks its upstream sender.
package pipeline

import (
	"time"

	"github.com/JoeyEamigh/ccengram/internal/chunk"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// PipelineFile is the unit of work the reader stage consumes, either
// produced by the scanner fan-in or injected directly by the watcher's
// pipeline-injection mode. Stream end is signaled by closing the channel
// PipelineFile values travel on, not by a sentinel value — Go channels
// already broadcast completion correctly to a multi-worker reader pool,
// where a sentinel *value* would only be observed by whichever single
// worker happened to receive it.
type PipelineFile struct {
	Path         string
	RelativePath string
	Language     string
	ModTime      time.Time
	OldContent   *string // previous content, for incremental chunk reuse
}

// PipelineContent is what the reader hands the parser. Stage boundaries
// signal stream end by closing the channel (mirroring the teacher's
// scanner.Scan, whose channel "is closed when scanning is complete") rather
// than with a Done value in the message — several of this pipeline's
// boundaries fan out to worker pools, and a sentinel value on a
// multi-consumer channel would only ever be observed by one worker. Err
// marks a single file's failure; it does not end the stream.
type PipelineContent struct {
	File    PipelineFile
	Content string
	Err     error
}

// PipelineChunks is what the parser hands the embedder.
type PipelineChunks struct {
	File     PipelineFile
	Document *store.Document
	Chunks   []chunk.Chunk
	Rows     []*store.DocumentChunk

	// ReuseFrom maps a new chunk's index to the prior run's chunk id whose
	// vector should be carried forward unchanged; its content-hash matched
	// exactly, so it needs no new embedding call. Indices absent from this
	// map are in IndicesNeedingEmbed instead.
	ReuseFrom           map[int]string
	IndicesNeedingEmbed []int
	Err                 error
}

// EmbeddedChunks is what the embedder hands the writer: Rows in the same
// order as PipelineChunks.Rows. Vectors holds only freshly embedded
// vectors, keyed by row index; ReuseFrom passes through unchanged so the
// writer can fetch reused vectors itself (it owns the store handle and the
// active model id at flush time).
type EmbeddedChunks struct {
	File      PipelineFile
	Document  *store.Document
	Rows      []*store.DocumentChunk
	Vectors   map[int][]float32
	ReuseFrom map[int]string
	Degraded  bool // true if any chunk fell back to a zero vector
	Err       error
}

// WriteOperation lets a watcher bypass straight to the writer for deletes
// and renames, which have nothing to embed.
type WriteOperation struct {
	Delete     bool
	DocumentID string
	Path       string
	ProjectID  string
}

// Config is one profile's buffer sizes and thresholds (spec.md §4.J).
type Config struct {
	ScannerBuffer   int
	ReaderBuffer    int
	ReaderWorkers   int
	ParserBuffer    int
	ParserWorkers   int
	EmbedBatchSize  int
	EmbedTimeout    time.Duration
	WriterFlushN    int
	WriterFlushTime time.Duration
}

// Bulk is the >100-file preset (spec.md §4.J).
func Bulk() Config {
	return Config{
		ScannerBuffer:   256,
		ReaderBuffer:    128,
		ReaderWorkers:   16,
		ParserBuffer:    256,
		ParserWorkers:   0, // 0 = runtime.NumCPU()
		EmbedBatchSize:  64,
		EmbedTimeout:    50 * time.Millisecond,
		WriterFlushN:    500,
		WriterFlushTime: time.Second,
	}
}

// Incremental is the <=100-file preset (spec.md §4.J).
func Incremental() Config {
	return Config{
		ScannerBuffer:   16,
		ReaderBuffer:    8,
		ReaderWorkers:   8,
		ParserBuffer:    16,
		ParserWorkers:   0,
		EmbedBatchSize:  64,
		EmbedTimeout:    10 * time.Millisecond,
		WriterFlushN:    50,
		WriterFlushTime: 100 * time.Millisecond,
	}
}

// Auto selects Bulk for >100 files, Incremental otherwise (spec.md §4.J).
func Auto(fileCount int) Config {
	if fileCount > 100 {
		return Bulk()
	}
	return Incremental()
}

const (
	// MaxEmbedTokens is spec.md §4.J's oversized-chunk truncation bound.
	MaxEmbedTokens = 8000
	// CharsPerToken matches internal/chunk's token estimate.
	CharsPerToken = 4
	// MaxEmbedRetries bounds the embedder's own exponential backoff on
	// refundable batch failures, distinct from (and on top of) each
	// provider's internal per-HTTP-call retry loop.
	MaxEmbedRetries = 3
)
