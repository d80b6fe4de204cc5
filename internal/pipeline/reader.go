package pipeline

import (
	"context"
	"os"
	"sync"
)

// runReaders fans a bounded worker pool out over in (spec.md §4.J:
// "I/O-bound worker pool sharing one receiver ... for work-stealing") —
// every worker receives from the same channel, which is Go's native
// work-stealing primitive. in must be closed by the caller once exhausted;
// runReaders closes out once every worker has drained, propagating the
// Done signal downstream only after upstream Done was observed.
func runReaders(ctx context.Context, workers int, in <-chan PipelineFile, out chan<- PipelineContent) {
	if workers <= 0 {
		workers = 8
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for f := range in {
				select {
				case <-ctx.Done():
					return
				default:
				}

				content, err := readFile(f)
				select {
				case out <- PipelineContent{File: f, Content: content, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()
	close(out)
}

func readFile(f PipelineFile) (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
