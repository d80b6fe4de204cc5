package pipeline

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/JoeyEamigh/ccengram/internal/embed"
	"github.com/JoeyEamigh/ccengram/internal/ratelimit"
)

// EmbedderDeps are the embedder stage's collaborators.
type EmbedderDeps struct {
	Embedder *embed.EmbeddingService
	Limiter  *ratelimit.Limiter
}

// runEmbedder accumulates PipelineChunks, firing a batch when its pending
// chunk count reaches batchSize OR timeout elapses since the first pending
// chunk was queued OR in closes (spec.md §4.J). Batches are dispatched
// concurrently — the accumulator loop is never blocked waiting on an
// in-flight embed call. in must be closed by the caller; out is closed once
// every in-flight batch has completed.
func runEmbedder(ctx context.Context, deps EmbedderDeps, batchSize int, timeout time.Duration, in <-chan PipelineChunks, out chan<- EmbeddedChunks) {
	if batchSize <= 0 {
		batchSize = 64
	}
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}

	var wg sync.WaitGroup
	var pending []PipelineChunks
	var pendingTexts []string
	var pendingRefs []chunkRef

	timer := time.NewTimer(timeout)
	timer.Stop()
	timerArmed := false

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		texts := pendingTexts
		refs := pendingRefs
		pending = nil
		pendingTexts = nil
		pendingRefs = nil
		if timerArmed {
			timer.Stop()
			timerArmed = false
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			embedBatch(ctx, deps, batch, texts, refs, out)
		}()
	}

	for {
		select {
		case pc, ok := <-in:
			if !ok {
				flush()
				wg.Wait()
				close(out)
				return
			}
			if pc.Err != nil {
				select {
				case out <- EmbeddedChunks{File: pc.File, Err: pc.Err}:
				case <-ctx.Done():
				}
				continue
			}
			if len(pc.IndicesNeedingEmbed) == 0 {
				// Every chunk was reused (or the file had none); skip
				// straight to a zero-batch dispatch so the writer still
				// gets the document/rows and resolves reused vectors
				// itself.
				wg.Add(1)
				go func(pc PipelineChunks) {
					defer wg.Done()
					embedBatch(ctx, deps, []PipelineChunks{pc}, nil, nil, out)
				}(pc)
				continue
			}

			batchIdx := len(pending)
			pending = append(pending, pc)
			for _, idx := range pc.IndicesNeedingEmbed {
				pendingTexts = append(pendingTexts, pc.Rows[idx].Content)
				pendingRefs = append(pendingRefs, chunkRef{batchIdx: batchIdx, chunkIdx: idx})
			}
			if !timerArmed {
				timer.Reset(timeout)
				timerArmed = true
			}
			if len(pendingTexts) >= batchSize {
				flush()
			}

		case <-timer.C:
			timerArmed = false
			flush()

		case <-ctx.Done():
			wg.Wait()
			close(out)
			return
		}
	}
}

// chunkRef locates one chunk within the batch slice passed to embedBatch.
type chunkRef struct {
	batchIdx int
	chunkIdx int
}

// embedBatch embeds pendingTexts (truncating oversized ones), applies the
// refund-aware retry policy, and emits one EmbeddedChunks per file in
// batch. Vectors carries only freshly embedded indices; ReuseFrom passes
// through unchanged so the writer (which owns the store handle and active
// model id at flush time) can resolve reused vectors itself.
func embedBatch(ctx context.Context, deps EmbedderDeps, batch []PipelineChunks, texts []string, refs []chunkRef, out chan<- EmbeddedChunks) {
	vectorsByRef := map[chunkRef][]float32{}
	degraded := false

	if len(texts) > 0 {
		truncated := make([]string, len(texts))
		for i, t := range texts {
			truncated[i] = truncateForEmbedding(t)
		}

		vecs, err := embedWithRetry(ctx, deps, truncated)
		if err != nil {
			slog.Warn("pipeline: batch embed failed terminally, degrading to zero vectors", slog.String("error", err.Error()))
			degraded = true
			dim := embed.DefaultDimensions
			if deps.Embedder != nil {
				dim = deps.Embedder.Dimensions()
			}
			vecs = make([][]float32, len(texts))
			for i := range vecs {
				vecs[i] = make([]float32, dim)
			}
		}
		for i, ref := range refs {
			if i < len(vecs) {
				vectorsByRef[ref] = vecs[i]
			}
		}
	}

	for bi, pc := range batch {
		vectors := map[int][]float32{}
		for i := range pc.Rows {
			if v, ok := vectorsByRef[chunkRef{batchIdx: bi, chunkIdx: i}]; ok {
				vectors[i] = v
			}
		}

		select {
		case out <- EmbeddedChunks{
			File:      pc.File,
			Document:  pc.Document,
			Rows:      pc.Rows,
			Vectors:   vectors,
			ReuseFrom: pc.ReuseFrom,
			Degraded:  degraded,
		}:
		case <-ctx.Done():
			return
		}
	}
}

// embedWithRetry wraps EmbeddingService.EmbedBatch with the pipeline's own
// bounded exponential backoff on top of each provider's internal per-call
// retry (spec.md §4.J): a batch-level rate-limiter token is borrowed once
// per attempt, refunded on a refundable failure, and not refunded on a
// non-refundable one.
func embedWithRetry(ctx context.Context, deps EmbedderDeps, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < MaxEmbedRetries; attempt++ {
		if deps.Limiter != nil {
			if err := deps.Limiter.Acquire(ctx, 0); err != nil {
				return nil, err
			}
		}

		if deps.Embedder == nil {
			if deps.Limiter != nil {
				deps.Limiter.Refund()
			}
			return nil, errNoEmbedder
		}

		result, err := deps.Embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return result.Vectors, nil
		}
		lastErr = err

		if deps.Limiter != nil && isRefundable(err) {
			deps.Limiter.Refund()
		}
		if !isRefundable(err) {
			return nil, err
		}

		backoff := time.Duration(1<<uint(attempt)) * 20 * time.Millisecond
		backoff += time.Duration(rand.Intn(10)) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// isRefundable applies spec.md §4.B/§4.J's failure split at the pipeline
// layer: each provider already retries its own transient HTTP failures
// internally (see internal/embed's own refundable classification), so by
// the time an error reaches here it has exhausted that inner retry budget.
// Only an explicit rate-limit/4xx signal in the error text is treated as
// non-refundable; everything else (network, timeout, 5xx) is refundable.
func isRefundable(err error) bool {
	if err == nil {
		return true
	}
	msg := strings.ToLower(err.Error())
	nonRefundableMarkers := []string{"429", "rate limit", "invalid request", "unauthorized", "forbidden", "bad request"}
	for _, m := range nonRefundableMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	return true
}

func truncateForEmbedding(text string) string {
	maxChars := MaxEmbedTokens * CharsPerToken
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}

var errNoEmbedder = &noEmbedderError{}

type noEmbedderError struct{}

func (e *noEmbedderError) Error() string { return "pipeline: no embedding provider configured" }
