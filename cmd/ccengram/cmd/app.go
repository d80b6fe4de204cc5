package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JoeyEamigh/ccengram/internal/config"
	"github.com/JoeyEamigh/ccengram/internal/docsearch"
	"github.com/JoeyEamigh/ccengram/internal/embed"
	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/ratelimit"
	"github.com/JoeyEamigh/ccengram/internal/recall"
	"github.com/JoeyEamigh/ccengram/internal/relationship"
	"github.com/JoeyEamigh/ccengram/internal/session"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// dataDirName and dbFileName mirror the .ccengram.yaml project-config
// convention: a hidden per-project directory alongside the config file
// rather than a machine-global path, so the index travels with `git clone`
// the same way the config does.
const (
	dataDirName = ".ccengram"
	dbFileName  = "data.db"
)

// app bundles the wiring every subcommand but `version` needs: config,
// store, embedding service, and the business-logic layers spec.md §4
// describes on top of them.
type app struct {
	root     string
	cfg      *config.Config
	db       *store.SQLiteStore
	embedder *embed.EmbeddingService
	memories *memory.Store
	recall   *recall.Engine
	docs     *docsearch.Engine
	sessions *session.Manager
	rels     *relationship.Relationships
	limiter  *ratelimit.Limiter
	project  *store.Project
}

// openApp resolves the project root from the working directory, loads its
// config, opens the store, and constructs every layer above it. Commands
// that only need the config (e.g. `init` before a project exists) should
// not call this; everything else should.
func openApp(ctx context.Context) (*app, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dbPath := filepath.Join(root, dataDirName, dbFileName)
	db, err := store.OpenWithBackend(dbPath, cfg.Search.BM25Backend)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", dbPath, err)
	}

	embedder, err := buildEmbedder(ctx, db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	project, err := ensureProject(ctx, db, root)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	mem := memory.New(db, embedder)

	return &app{
		root:     root,
		cfg:      cfg,
		db:       db,
		embedder: embedder,
		memories: mem,
		recall:   recall.NewEngine(db, mem, embedder),
		docs:     docsearch.NewEngine(db, embedder),
		sessions: session.New(db, mem),
		rels:     relationship.New(db),
		limiter:  ratelimit.New(ratelimit.DefaultCapacity, ratelimit.DefaultRefillStep),
		project:  project,
	}, nil
}

func (a *app) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// projectRoot walks up from the working directory for .ccengram.yaml/.git,
// the same discovery config.Load's callers are expected to do.
func projectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	root, err := config.FindProjectRoot(wd)
	if err != nil {
		return "", fmt.Errorf("%w (run `ccengram init` first)", err)
	}
	return root, nil
}

// buildEmbedder wires the local (Ollama-compatible) provider and, when
// configured, the remote OpenAI-compatible provider into the composite
// embed.EmbeddingService, in the order cfg.Embeddings.FallbackOrder names.
func buildEmbedder(ctx context.Context, db store.Store, cfg *config.Config) (*embed.EmbeddingService, error) {
	providers := make(map[string]embed.Embedder)

	localCfg := embed.DefaultLocalConfig()
	if cfg.Embeddings.OllamaHost != "" {
		localCfg.Host = cfg.Embeddings.OllamaHost
	}
	if cfg.Embeddings.Model != "" {
		localCfg.Model = cfg.Embeddings.Model
	}
	if cfg.Embeddings.Dimensions > 0 {
		localCfg.Dimensions = cfg.Embeddings.Dimensions
	}
	local, err := embed.NewLocalProvider(ctx, localCfg)
	if err != nil {
		return nil, fmt.Errorf("constructing local embedding provider: %w", err)
	}
	providers["local"] = local

	if cfg.Embeddings.RemoteAPIKey != "" {
		remoteCfg := embed.DefaultRemoteConfig()
		remoteCfg.APIKey = cfg.Embeddings.RemoteAPIKey
		if cfg.Embeddings.RemoteBaseURL != "" {
			remoteCfg.BaseURL = cfg.Embeddings.RemoteBaseURL
		}
		if cfg.Embeddings.RemoteModel != "" {
			remoteCfg.Model = cfg.Embeddings.RemoteModel
		}
		remote, err := embed.NewRemoteProvider(remoteCfg)
		if err != nil {
			return nil, fmt.Errorf("constructing remote embedding provider: %w", err)
		}
		providers["remote"] = remote
	}

	order := cfg.Embeddings.FallbackOrder
	if len(order) == 0 {
		order = []string{"local"}
		if _, ok := providers["remote"]; ok {
			order = append(order, "remote")
		}
	}

	svc, err := embed.NewEmbeddingService(ctx, db, providers, order)
	if err != nil {
		return nil, fmt.Errorf("starting embedding service: %w", err)
	}
	return svc, nil
}

// ensureProject resolves the store.Project row for root, creating it on
// first use (spec.md §4.A: a project is identified by its filesystem path).
func ensureProject(ctx context.Context, db store.Store, root string) (*store.Project, error) {
	p, err := db.GetProjectByPath(ctx, root)
	if err == nil {
		return p, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("looking up project: %w", err)
	}

	p = &store.Project{
		ID:   uuid.NewString(),
		Path: root,
		Name: filepath.Base(root),
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := db.UpsertProject(ctx, p); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}
