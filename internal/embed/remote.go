package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// knownRemoteDimensions maps known OpenAI-compatible model names to their
// output dimension (spec.md §6 known-dimensions table). Unknown models
// default to 1536.
var knownRemoteDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const defaultRemoteDimensions = 1536

// RemoteConfig configures the OpenAI-compatible remote embedding provider.
type RemoteConfig struct {
	BaseURL    string // empty uses go-openai's default (api.openai.com)
	APIKey     string
	Model      string
	Dimensions int // 0 = looked up from knownRemoteDimensions, else default
	Timeout    time.Duration
	MaxRetries int
}

func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Model:      string(openai.AdaEmbeddingV2),
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// RemoteProvider wraps go-openai's client for any OpenAI-compatible
// embeddings endpoint: POST /v1/embeddings (bulk) and GET /v1/models
// (availability probe).
type RemoteProvider struct {
	client *openai.Client
	config RemoteConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*RemoteProvider)(nil)

func NewRemoteProvider(cfg RemoteConfig) (*RemoteProvider, error) {
	if cfg.Model == "" {
		cfg.Model = string(openai.AdaEmbeddingV2)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("remote embedding provider requires an API key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	dims := cfg.Dimensions
	if dims == 0 {
		if known, ok := knownRemoteDimensions[cfg.Model]; ok {
			dims = known
		} else {
			dims = defaultRemoteDimensions
		}
	}

	return &RemoteProvider{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		dims:   dims,
	}, nil
}

func (p *RemoteProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch issues a single bulk request, matching spec.md §4.B's "batching
// uses a single bulk request" for the remote variant.
func (p *RemoteProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	p.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<uint(attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		vecs, refundable, err := p.doEmbed(timeoutCtx, texts)
		cancel()
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !refundable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("remote embed failed after %d attempts: %w", p.config.MaxRetries, lastErr)
}

func (p *RemoteProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, bool, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.config.Model),
	})
	if err != nil {
		return nil, isRefundableOpenAIErr(err), fmt.Errorf("remote embedding request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, true, fmt.Errorf("remote provider returned %d embeddings, expected %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = normalizeVector(d.Embedding)
	}
	return out, false, nil
}

// isRefundableOpenAIErr applies spec.md §4.B's failure model: network/5xx/
// timeout are refundable, 4xx (including 429) are not.
func isRefundableOpenAIErr(err error) bool {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		return apiErr.HTTPStatusCode >= 500
	}
	return true // connection-level error, not a structured API error
}

func asAPIError(err error, target **openai.APIError) bool {
	for e := err; e != nil; {
		if ae, ok := e.(*openai.APIError); ok {
			*target = ae
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

func (p *RemoteProvider) Dimensions() int   { return p.dims }
func (p *RemoteProvider) ModelName() string { return p.config.Model }

func (p *RemoteProvider) Available(ctx context.Context) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	p.mu.RUnlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	_, err := p.client.ListModels(timeoutCtx)
	return err == nil
}

func (p *RemoteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
