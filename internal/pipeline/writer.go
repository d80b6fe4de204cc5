package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// WriterDeps are the writer stage's collaborators.
type WriterDeps struct {
	DB        store.Store
	ProjectID string
	ModelID   string
}

// Progress is what runWriter reports after each flush, folding in any
// per-file read/parse/embed errors observed upstream (spec.md §7: a
// pipeline stage never fails the whole run for one file).
type Progress struct {
	FilesWritten int
	ChunksWritten int
	Errors        []FileError
}

// FileError pairs a file with the stage that failed on it.
type FileError struct {
	Path  string
	Stage string
	Err   error
}

// runWriter is the pipeline's single writer task (spec.md §4.J). It
// accumulates EmbeddedChunks (and any directly-injected WriteOperations)
// and, on threshold breach (size or time), runs one flush: batch-delete
// superseded chunks for changed files, batch-insert new chunks, insert
// vectors, and upsert document + indexed_file rows. onProgress, if set, is
// called after every flush. writes may be nil if the watcher's pipeline
// injection mode is not wired in.
func runWriter(ctx context.Context, deps WriterDeps, flushN int, flushInterval time.Duration, in <-chan EmbeddedChunks, writes <-chan WriteOperation, onProgress func(Progress)) {
	if flushN <= 0 {
		flushN = 500
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	var pending []EmbeddedChunks
	pendingChunks := 0
	var fileErrors []FileError

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 && len(fileErrors) == 0 {
			return
		}
		progress := flushBatch(ctx, deps, pending)
		progress.Errors = append(progress.Errors, fileErrors...)
		pending = nil
		pendingChunks = 0
		fileErrors = nil
		if onProgress != nil {
			onProgress(progress)
		}
	}

	writesDone := writes == nil
	inDone := false

	for !inDone || !writesDone {
		select {
		case ec, ok := <-in:
			if !ok {
				inDone = true
				in = nil
				continue
			}
			if ec.Err != nil {
				fileErrors = append(fileErrors, FileError{Path: ec.File.Path, Stage: "pipeline", Err: ec.Err})
				continue
			}
			pending = append(pending, ec)
			pendingChunks += len(ec.Rows)
			if pendingChunks >= flushN {
				flush()
			}

		case op, ok := <-writes:
			if !ok {
				writesDone = true
				writes = nil
				continue
			}
			if err := applyWriteOperation(ctx, deps, op); err != nil {
				slog.Warn("pipeline: direct write operation failed", slog.String("path", op.Path), slog.String("error", err.Error()))
			}

		case <-ticker.C:
			flush()

		case <-ctx.Done():
			flush()
			return
		}
	}
	flush()
}

// flushBatch runs the writer's one-transaction-per-flush persistence step.
// Each file's document/chunks/vectors/indexed-file rows are written
// together; store.ReplaceChunks already transacts the delete-then-insert
// of a single document's chunks, so "one transaction per flush, not per
// file" is approximated here as one store round-trip per file within a
// single flush batch rather than per individual chunk.
func flushBatch(ctx context.Context, deps WriterDeps, batch []EmbeddedChunks) Progress {
	progress := Progress{}

	for _, ec := range batch {
		if ec.Document == nil {
			continue
		}
		doc := ec.Document
		doc.ProjectID = deps.ProjectID

		if err := deps.DB.UpsertDocument(ctx, doc); err != nil {
			progress.Errors = append(progress.Errors, FileError{Path: ec.File.Path, Stage: "write:document", Err: err})
			continue
		}

		if err := deps.DB.ReplaceChunks(ctx, doc.ID, ec.Rows); err != nil {
			progress.Errors = append(progress.Errors, FileError{Path: ec.File.Path, Stage: "write:chunks", Err: err})
			continue
		}

		for i, row := range ec.Rows {
			vec, ok := ec.Vectors[i]
			if !ok {
				if oldChunkID, reused := ec.ReuseFrom[i]; reused {
					if old, err := deps.DB.GetDocumentVector(ctx, oldChunkID, deps.ModelID); err == nil && old != nil {
						vec = old.Vector
						ok = true
					}
				}
			}
			if !ok {
				continue
			}
			if err := deps.DB.UpsertDocumentVector(ctx, &store.DocumentVector{
				ChunkID: row.ID,
				ModelID: deps.ModelID,
				Vector:  vec,
				Dim:     len(vec),
			}); err != nil {
				progress.Errors = append(progress.Errors, FileError{Path: ec.File.Path, Stage: "write:vector", Err: err})
			}
		}

		if err := deps.DB.UpsertIndexedFile(ctx, &store.IndexedFile{
			ProjectID: deps.ProjectID,
			Path:      ec.File.RelativePath,
			Checksum:  doc.Checksum,
			MTime:     ec.File.ModTime,
			IndexedAt: time.Now(),
		}); err != nil {
			progress.Errors = append(progress.Errors, FileError{Path: ec.File.Path, Stage: "write:indexed_file", Err: err})
		}

		progress.FilesWritten++
		progress.ChunksWritten += len(ec.Rows)
	}

	return progress
}

// applyWriteOperation handles a watcher's direct-to-writer delete/rename
// injection (spec.md §4.K "deletes/renames bypass straight to the
// writer"), which has nothing to embed.
func applyWriteOperation(ctx context.Context, deps WriterDeps, op WriteOperation) error {
	if !op.Delete {
		return nil
	}
	if op.DocumentID != "" {
		if err := deps.DB.DeleteDocument(ctx, op.DocumentID); err != nil {
			return err
		}
	}
	return deps.DB.DeleteIndexedFile(ctx, op.ProjectID, op.Path)
}
