package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// LocalProvider speaks the Ollama-compatible local embedding API: GET
// /api/tags for model discovery, POST /api/embeddings (singular prompt in,
// one vector out) for generation. It has no native batch endpoint, so
// EmbedBatch fans single requests out across a bounded worker pool.
type LocalProvider struct {
	client    *http.Client
	transport *http.Transport
	config    LocalConfig
	modelName string

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*LocalProvider)(nil)

func NewLocalProvider(ctx context.Context, cfg LocalConfig) (*LocalProvider, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultLocalHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = LocalConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = LocalPoolSize
	}
	if cfg.ParallelBatch <= 0 {
		cfg.ParallelBatch = 8
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	client := &http.Client{Transport: transport}

	p := &LocalProvider{
		client:    client,
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if !p.probeTags(checkCtx) {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("local embedding host %s did not respond to /api/tags", cfg.Host)
		}
		if p.dims == 0 {
			dims, err := p.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("detecting local embedding dimensions: %w", err)
			}
			p.dims = dims
		}
	}
	if p.dims == 0 {
		p.dims = DefaultDimensions
	}

	return p, nil
}

func (p *LocalProvider) probeTags(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (p *LocalProvider) detectDimensions(ctx context.Context) (int, error) {
	vec, err := p.embedOne(ctx, "dimension detection")
	if err != nil {
		return 0, err
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(vec), nil
}

func (p *LocalProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	reqBody := localEmbedRequest{Model: p.modelName, Prompt: text}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
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
		vec, refundable, err := p.doEmbed(timeoutCtx, body)
		cancel()
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !refundable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("local embed failed after %d attempts: %w", p.config.MaxRetries, lastErr)
}

// doEmbed issues one POST /api/embeddings call. The bool return reports
// whether a failure is refundable to the pipeline's rate limiter:
// network/5xx/timeout are refundable, 4xx are not (spec.md §4.B).
func (p *LocalProvider) doEmbed(ctx context.Context, body []byte) ([]float32, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, true, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, true, fmt.Errorf("local embed server error %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("local embed failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result localEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, true, fmt.Errorf("decoding embed response: %w", err)
	}

	vec := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vec[i] = float32(v)
	}
	return normalizeVector(vec), false, nil
}

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	p.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return make([]float32, p.dims), nil
	}
	return p.embedOne(ctx, text)
}

// EmbedBatch fans out parallel single-embed calls, bounded by
// config.ParallelBatch, since the local API has no native batch form
// (spec.md §4.B: "Batch is implemented as parallel single embeds").
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	p.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, p.config.ParallelBatch)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			vec, err := p.Embed(ctx, text)
			results[i] = vec
			errs[i] = err
		}(i, text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("embedding batch: %w", err)
		}
	}
	return results, nil
}

func (p *LocalProvider) Dimensions() int   { return p.dims }
func (p *LocalProvider) ModelName() string { return p.modelName }

func (p *LocalProvider) Available(ctx context.Context) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	p.mu.RUnlock()
	return p.probeTags(ctx)
}

func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
