package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

// ProviderUnavailableError is returned when a requested provider switch
// fails its availability probe.
type ProviderUnavailableError struct {
	Name string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("embedding provider %q is unavailable", e.Name)
}

// EmbedResult carries a single embedding plus the metadata spec.md §4.B
// requires callers see alongside it.
type EmbedResult struct {
	Vector     []float32
	Model      string
	Dimensions int
	Cached     bool
}

// BatchEmbedResult is EmbedResult's batch counterpart.
type BatchEmbedResult struct {
	Vectors    [][]float32
	Model      string
	Dimensions int
}

// EmbeddingService owns one active provider plus configured alternates,
// probes availability on construction and on explicit switch, and keeps
// the store's embedding_models table in sync with whichever provider is
// active (spec.md §4.B).
type EmbeddingService struct {
	mu        sync.RWMutex
	store     store.Store
	providers map[string]Embedder
	order     []string
	active    string
}

// NewEmbeddingService tries each provider in order, selecting the first
// whose Available probe succeeds.
func NewEmbeddingService(ctx context.Context, st store.Store, providers map[string]Embedder, order []string) (*EmbeddingService, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("embedding service requires at least one provider")
	}

	svc := &EmbeddingService{
		store:     st,
		providers: providers,
	}

	for _, name := range order {
		e, ok := providers[name]
		if !ok {
			continue
		}
		svc.order = append(svc.order, name)
		if svc.active == "" && e.Available(ctx) {
			svc.active = name
		}
	}

	if svc.active == "" {
		return nil, fmt.Errorf("no configured embedding provider is available (tried %v)", order)
	}
	if err := svc.registerActive(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *EmbeddingService) activeEmbedder() Embedder {
	return s.providers[s.active]
}

func (s *EmbeddingService) modelID(name string) string {
	return name + ":" + s.providers[name].ModelName()
}

func (s *EmbeddingService) registerActive(ctx context.Context) error {
	e := s.activeEmbedder()
	return s.store.RegisterEmbeddingModel(ctx, &store.EmbeddingModel{
		ID:         s.modelID(s.active),
		Provider:   s.active,
		Name:       e.ModelName(),
		Dimensions: e.Dimensions(),
		IsActive:   true,
	})
}

// GetActiveModelID returns the "provider:model" identifier used as the
// model_id column in memory_vectors/document_vectors.
func (s *EmbeddingService) GetActiveModelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelID(s.active)
}

func (s *EmbeddingService) ActiveProviderName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Dimensions returns the active provider's embedding width.
func (s *EmbeddingService) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeEmbedder().Dimensions()
}

// SwitchProvider probes name's availability and, if it succeeds, makes it
// the active provider atomically. The store's embedding_models table is
// updated to match.
func (s *EmbeddingService) SwitchProvider(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.providers[name]
	if !ok {
		return fmt.Errorf("unknown embedding provider %q", name)
	}
	if !e.Available(ctx) {
		return &ProviderUnavailableError{Name: name}
	}

	prevActive := s.active
	s.active = name
	if err := s.registerActive(ctx); err != nil {
		s.active = prevActive
		return err
	}
	return nil
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	s.mu.RLock()
	e := s.activeEmbedder()
	active := s.active
	s.mu.RUnlock()

	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// CachedEmbedder does not report per-call hit/miss, so Cached reflects
	// whether the active provider has caching enabled at all.
	_, cached := e.(*CachedEmbedder)
	return &EmbedResult{
		Vector:     vec,
		Model:      s.modelID(active),
		Dimensions: e.Dimensions(),
		Cached:     cached,
	}, nil
}

func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedResult, error) {
	s.mu.RLock()
	e := s.activeEmbedder()
	active := s.active
	s.mu.RUnlock()

	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	return &BatchEmbedResult{
		Vectors:    vecs,
		Model:      s.modelID(active),
		Dimensions: e.Dimensions(),
	}, nil
}

// Close releases every configured provider, not just the active one.
func (s *EmbeddingService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, e := range s.providers {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
