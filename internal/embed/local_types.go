package embed

import "time"

// Local provider (Ollama-compatible) API constants.
const (
	DefaultLocalHost  = "http://localhost:11434"
	DefaultLocalModel = "nomic-embed-text"

	LocalConnectTimeout = 5 * time.Second
	LocalPoolSize       = 4
)

// LocalConfig configures the local HTTP embedding provider.
type LocalConfig struct {
	Host            string
	Model           string
	Dimensions      int // 0 = auto-detect from probe embed
	Timeout         time.Duration
	ConnectTimeout  time.Duration
	MaxRetries      int
	PoolSize        int
	ParallelBatch   int // max concurrent single-embed calls per EmbedBatch
	SkipHealthCheck bool
}

func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Host:           DefaultLocalHost,
		Model:          DefaultLocalModel,
		Timeout:        DefaultTimeout,
		ConnectTimeout: LocalConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       LocalPoolSize,
		ParallelBatch:  8,
	}
}

// localModelListResponse is the GET /api/tags response.
type localModelListResponse struct {
	Models []localModelInfo `json:"models"`
}

type localModelInfo struct {
	Name string `json:"name"`
}

// localEmbedRequest is the POST /api/embeddings request.
type localEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// localEmbedResponse is the POST /api/embeddings response.
type localEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}
