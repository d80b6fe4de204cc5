package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 32

	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3

	// DefaultDimensions is used when a provider cannot determine its own
	// dimension (e.g. health check skipped).
	DefaultDimensions = 768
)

// Embedder generates vector embeddings for text. Both concrete providers
// (LocalProvider, RemoteProvider) and the CachedEmbedder wrapper satisfy
// this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector returns a unit-length copy of v; a zero vector is
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
