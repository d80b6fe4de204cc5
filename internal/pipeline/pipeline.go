package pipeline

import (
	"context"
	"time"

	"github.com/JoeyEamigh/ccengram/internal/embed"
	"github.com/JoeyEamigh/ccengram/internal/ratelimit"
	"github.com/JoeyEamigh/ccengram/internal/scanner"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// Pipeline wires the five stages together: Scanner (external, feeds Files)
// → Reader → Parser → Embedder → Writer (spec.md §4.J). One Pipeline is
// built per indexing run (bulk or incremental); a watcher in pipeline-
// injection mode sends directly into Files/Writes instead of going through
// a scan.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// Deps are every collaborator a Pipeline run needs.
type Deps struct {
	DB       store.Store
	Embedder *embed.EmbeddingService
	Limiter  *ratelimit.Limiter
}

// New builds a Pipeline for the given config and collaborators.
func New(cfg Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// Run drives one indexing pass for projectID over files, injecting extra
// direct-write operations (watcher deletes/renames) alongside. It blocks
// until every stage has drained, reporting aggregate progress via
// onProgress as each writer flush completes.
func (p *Pipeline) Run(ctx context.Context, projectID string, files <-chan PipelineFile, writes <-chan WriteOperation, onProgress func(Progress)) {
	fileCh := make(chan PipelineContent, p.cfg.ReaderBuffer)
	chunkCh := make(chan PipelineChunks, p.cfg.ParserBuffer)
	embeddedCh := make(chan EmbeddedChunks, p.cfg.ParserBuffer)

	modelID := ""
	if p.deps.Embedder != nil {
		modelID = p.deps.Embedder.GetActiveModelID()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runWriter(ctx, WriterDeps{DB: p.deps.DB, ProjectID: projectID, ModelID: modelID}, p.cfg.WriterFlushN, p.cfg.WriterFlushTime, embeddedCh, writes, onProgress)
	}()

	go runEmbedder(ctx, EmbedderDeps{Embedder: p.deps.Embedder, Limiter: p.deps.Limiter}, p.cfg.EmbedBatchSize, p.cfg.EmbedTimeout, chunkCh, embeddedCh)
	go runParsers(ctx, ParserDeps{DB: p.deps.DB, ProjectID: projectID}, p.cfg.ParserWorkers, fileCh, chunkCh)
	runReaders(ctx, p.cfg.ReaderWorkers, files, fileCh)

	<-done
}

// FilesFromScan converts a scan Report into PipelineFile values, skipping
// files whose IndexedFile row shows an unchanged mtime+checksum (spec.md
// §3 IndexedFile: "skipped if mtime <= indexed.mtime AND checksum
// matches"). It populates OldContent from the prior Document row's full
// text when present, enabling the parser's incremental chunk reuse. The
// returned channel is closed once every scanned file has been considered.
//
// scannerBuffer bounds how many PipelineFile values (each of which may
// carry a full prior document's OldContent) can sit in the channel ahead
// of the reader pool; callers pass the chosen Config's ScannerBuffer so
// the scan stage observes the same backpressure as the rest of the
// pipeline instead of buffering the entire scan up front.
func FilesFromScan(ctx context.Context, db store.Store, projectID string, report *scanner.Report, scannerBuffer int, readFile func(path string) (string, error)) <-chan PipelineFile {
	out := make(chan PipelineFile, scannerBuffer)
	go func() {
		defer close(out)
		for _, f := range report.Files {
			mtime := time.Unix(f.ModTime, 0)

			if existing, err := db.GetIndexedFile(ctx, projectID, f.RelativePath); err == nil && existing != nil {
				if !mtime.After(existing.MTime) {
					content, rerr := readFile(f.Path)
					if rerr == nil && contentHash(content) == existing.Checksum {
						continue
					}
				}
			}

			pf := PipelineFile{
				Path:         f.Path,
				RelativePath: f.RelativePath,
				Language:     f.Language,
				ModTime:      mtime,
			}
			if doc, err := db.GetDocumentByPath(ctx, projectID, f.RelativePath); err == nil && doc != nil {
				old := doc.FullContent
				pf.OldContent = &old
			}

			select {
			case out <- pf:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
