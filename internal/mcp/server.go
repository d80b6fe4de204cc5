// Package mcp implements the Model Context Protocol server that exposes
// the memory store and code index to AI coding assistants (spec.md §6).
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JoeyEamigh/ccengram/internal/config"
	"github.com/JoeyEamigh/ccengram/internal/docsearch"
	"github.com/JoeyEamigh/ccengram/internal/embed"
	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/recall"
	"github.com/JoeyEamigh/ccengram/internal/relationship"
	"github.com/JoeyEamigh/ccengram/internal/session"
	"github.com/JoeyEamigh/ccengram/internal/store"
	"github.com/JoeyEamigh/ccengram/pkg/version"
)

// Server is the MCP server: a thin go-sdk adapter over the memory store,
// hybrid recall, relationships, sessions, and code search engines.
type Server struct {
	mcp *mcp.Server

	db       store.Store
	memories *memory.Store
	recall   *recall.Engine
	rels     *relationship.Relationships
	sessions *session.Manager
	code     *docsearch.Engine
	embedder *embed.EmbeddingService // nil degrades index_status to "unavailable"

	config   *config.Config
	rootPath string
	logger   *slog.Logger
}

// NewServer wires every domain collaborator into an MCP server and
// registers its tools.
func NewServer(
	db store.Store,
	mem *memory.Store,
	recallEngine *recall.Engine,
	rels *relationship.Relationships,
	sessions *session.Manager,
	code *docsearch.Engine,
	embedder *embed.EmbeddingService,
	cfg *config.Config,
	rootPath string,
) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("mcp: store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		db:       db,
		memories: mem,
		recall:   recallEngine,
		rels:     rels,
		sessions: sessions,
		code:     code,
		embedder: embedder,
		config:   cfg,
		rootPath: rootPath,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "ccengram",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying go-sdk server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve starts the server on the given transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources; the underlying store outlives the MCP
// server and is closed by its own owner.
func (s *Server) Close() error {
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_create",
		Description: "Store a new memory. Duplicates of existing memories (by content similarity) are reinforced instead of creating a new row.",
	}, s.handleMemoryCreate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Hybrid search over stored memories: full-text plus semantic similarity, ranked by salience, recency, and access frequency.",
	}, s.handleMemorySearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_get",
		Description: "Fetch a single memory by id.",
	}, s.handleMemoryGet)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_reinforce",
		Description: "Increase a memory's salience, e.g. after confirming it is still accurate or useful.",
	}, s.handleMemoryReinforce)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_deemphasize",
		Description: "Decrease a memory's salience, e.g. after learning it is less relevant than when it was stored.",
	}, s.handleMemoryDeemphasize)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_delete",
		Description: "Delete a memory (soft-delete by default, recoverable; hard-delete permanently removes it).",
	}, s.handleMemoryDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_supersede",
		Description: "Mark one memory as superseded by another, closing its validity window while preserving history.",
	}, s.handleMemorySupersede)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_start",
		Description: "Start a new session for a project, ending any prior active session.",
	}, s.handleSessionStart)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_end",
		Description: "End a session, promoting its high-salience session-scoped memories to project tier.",
	}, s.handleSessionEnd)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid search over indexed source code. Finds functions, types, and implementations by meaning, not just keyword matching.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_docs",
		Description: "Hybrid search over indexed documentation and prose files.",
	}, s.handleSearchDocs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the code index's health and the active embedding model, for clients to decide whether to fall back to keyword-only search.",
	}, s.handleIndexStatus)
}

func (s *Server) handleMemoryCreate(ctx context.Context, _ *mcp.CallToolRequest, in MemoryCreateInput) (*mcp.CallToolResult, MemoryOutput, error) {
	if in.ProjectID == "" || strings.TrimSpace(in.Content) == "" {
		return nil, MemoryOutput{}, NewInvalidParamsError("project_id and content are required")
	}

	req := memory.CreateRequest{
		ProjectID:  in.ProjectID,
		SessionID:  in.SessionID,
		Content:    in.Content,
		Sector:     store.Sector(in.Sector),
		Tier:       store.Tier(in.Tier),
		Importance: in.Importance,
		Tags:       in.Tags,
		Files:      in.Files,
		Categories: in.Categories,
	}
	if in.Summary != "" {
		req.Summary = &in.Summary
	}
	if in.MemoryType != "" {
		mt := store.MemoryType(in.MemoryType)
		req.MemoryType = &mt
	}

	m, err := s.memories.Create(ctx, req)
	if err != nil {
		return nil, MemoryOutput{}, MapError(err)
	}
	return nil, toMemoryOutput(m), nil
}

func (s *Server) handleMemorySearch(ctx context.Context, _ *mcp.CallToolRequest, in MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
	if in.ProjectID == "" || strings.TrimSpace(in.Query) == "" {
		return nil, MemorySearchOutput{}, NewInvalidParamsError("project_id and query are required")
	}

	results, err := s.recall.Search(ctx, recall.Request{
		Query:             in.Query,
		ProjectID:         in.ProjectID,
		Sector:            store.Sector(in.Sector),
		Tier:              store.Tier(in.Tier),
		MemoryType:        store.MemoryType(in.MemoryType),
		Limit:             in.Limit,
		MinSalience:       in.MinSalience,
		IncludeSuperseded: in.IncludeSuperseded,
		SessionID:         in.SessionID,
		Mode:              recall.Mode(in.Mode),
	})
	if err != nil {
		return nil, MemorySearchOutput{}, MapError(err)
	}

	out := MemorySearchOutput{Results: make([]MemorySearchResult, 0, len(results))}
	for _, r := range results {
		mo := toMemoryOutput(r.Memory)
		mo.IsSuperseded = r.IsSuperseded
		if r.SupersededBy != nil {
			mo.SupersededBy = *r.SupersededBy
		}
		out.Results = append(out.Results, MemorySearchResult{
			Memory:             mo,
			Score:              r.Score,
			MatchType:          string(r.MatchType),
			RelatedMemoryCount: r.RelatedMemoryCount,
		})
	}
	return nil, out, nil
}

func (s *Server) handleMemoryGet(ctx context.Context, _ *mcp.CallToolRequest, in MemoryGetInput) (*mcp.CallToolResult, MemoryOutput, error) {
	if in.ID == "" {
		return nil, MemoryOutput{}, NewInvalidParamsError("id is required")
	}
	m, err := s.memories.Get(ctx, in.ID)
	if err != nil {
		return nil, MemoryOutput{}, MapError(err)
	}
	return nil, toMemoryOutput(m), nil
}

func (s *Server) handleMemoryReinforce(ctx context.Context, _ *mcp.CallToolRequest, in MemoryReinforceInput) (*mcp.CallToolResult, MemoryOutput, error) {
	if in.ID == "" {
		return nil, MemoryOutput{}, NewInvalidParamsError("id is required")
	}
	amount := in.Amount
	if amount <= 0 {
		amount = 0.1
	}
	m, err := s.memories.Reinforce(ctx, in.ID, amount)
	if err != nil {
		return nil, MemoryOutput{}, MapError(err)
	}
	return nil, toMemoryOutput(m), nil
}

func (s *Server) handleMemoryDeemphasize(ctx context.Context, _ *mcp.CallToolRequest, in MemoryReinforceInput) (*mcp.CallToolResult, MemoryOutput, error) {
	if in.ID == "" {
		return nil, MemoryOutput{}, NewInvalidParamsError("id is required")
	}
	amount := in.Amount
	if amount <= 0 {
		amount = 0.1
	}
	m, err := s.memories.Deemphasize(ctx, in.ID, amount)
	if err != nil {
		return nil, MemoryOutput{}, MapError(err)
	}
	return nil, toMemoryOutput(m), nil
}

func (s *Server) handleMemoryDelete(ctx context.Context, _ *mcp.CallToolRequest, in MemoryDeleteInput) (*mcp.CallToolResult, struct{}, error) {
	if in.ID == "" {
		return nil, struct{}{}, NewInvalidParamsError("id is required")
	}
	if err := s.memories.Delete(ctx, in.ID, in.Hard); err != nil {
		return nil, struct{}{}, MapError(err)
	}
	return nil, struct{}{}, nil
}

func (s *Server) handleMemorySupersede(ctx context.Context, _ *mcp.CallToolRequest, in MemorySupersedeInput) (*mcp.CallToolResult, struct{}, error) {
	if in.OldID == "" || in.NewID == "" {
		return nil, struct{}{}, NewInvalidParamsError("old_id and new_id are required")
	}
	if _, err := s.rels.Supersede(ctx, in.OldID, in.NewID); err != nil {
		return nil, struct{}{}, MapError(err)
	}
	return nil, struct{}{}, nil
}

func (s *Server) handleSessionStart(ctx context.Context, _ *mcp.CallToolRequest, in SessionStartInput) (*mcp.CallToolResult, SessionOutput, error) {
	if in.ProjectID == "" {
		return nil, SessionOutput{}, NewInvalidParamsError("project_id is required")
	}
	sess, err := s.sessions.Start(ctx, in.ProjectID, in.Context)
	if err != nil {
		return nil, SessionOutput{}, MapError(err)
	}
	return nil, toSessionOutput(sess), nil
}

func (s *Server) handleSessionEnd(ctx context.Context, _ *mcp.CallToolRequest, in SessionEndInput) (*mcp.CallToolResult, struct{}, error) {
	if in.SessionID == "" {
		return nil, struct{}{}, NewInvalidParamsError("session_id is required")
	}
	var summary *string
	if in.Summary != "" {
		summary = &in.Summary
	}
	if err := s.sessions.End(ctx, in.SessionID, summary); err != nil {
		return nil, struct{}{}, MapError(err)
	}
	return nil, struct{}{}, nil
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in SearchCodeInput) (*mcp.CallToolResult, CodeSearchOutput, error) {
	if in.ProjectID == "" || strings.TrimSpace(in.Query) == "" {
		return nil, CodeSearchOutput{}, NewInvalidParamsError("project_id and query are required")
	}
	results, err := s.code.Search(ctx, docsearch.Request{
		Query: in.Query, ProjectID: in.ProjectID, Limit: in.Limit, CodeOnly: true,
	})
	if err != nil {
		return nil, CodeSearchOutput{}, MapError(err)
	}
	return nil, toCodeSearchOutput(results), nil
}

func (s *Server) handleSearchDocs(ctx context.Context, _ *mcp.CallToolRequest, in SearchDocsInput) (*mcp.CallToolResult, CodeSearchOutput, error) {
	if in.ProjectID == "" || strings.TrimSpace(in.Query) == "" {
		return nil, CodeSearchOutput{}, NewInvalidParamsError("project_id and query are required")
	}
	results, err := s.code.Search(ctx, docsearch.Request{
		Query: in.Query, ProjectID: in.ProjectID, Limit: in.Limit, DocsOnly: true,
	})
	if err != nil {
		return nil, CodeSearchOutput{}, MapError(err)
	}
	return nil, toCodeSearchOutput(results), nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, in IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	detector := NewProjectDetector(s.rootPath, s.logger)
	info := detector.Detect()

	out := IndexStatusOutput{
		Project: ProjectInfo{Name: info.Name, RootPath: info.RootPath, Type: info.Type},
	}

	if in.ProjectID != "" {
		if state, err := s.db.GetCodeIndexState(ctx, in.ProjectID); err == nil && state != nil {
			out.Stats.IndexedFiles = state.IndexedFiles
			out.Stats.LastIndexed = state.LastIndexedAt.Format(time.RFC3339)
		}
	}

	if s.embedder != nil {
		modelID := s.embedder.GetActiveModelID()
		out.Embeddings = EmbeddingInfo{
			Provider:   s.embedder.ActiveProviderName(),
			Model:      modelID,
			Dimensions: s.embedder.Dimensions(),
			Available:  true,
		}
		ratio, orphans, live := s.db.VectorIndexStats("document", modelID)
		out.Stats.VectorRatio = ratio
		out.Stats.OrphanedVectors = orphans
		out.Stats.LiveVectors = live
	} else {
		out.Embeddings = EmbeddingInfo{Provider: s.config.Embeddings.Provider, Model: s.config.Embeddings.Model}
	}

	return nil, out, nil
}

func toMemoryOutput(m *store.Memory) MemoryOutput {
	if m == nil {
		return MemoryOutput{}
	}
	out := MemoryOutput{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Content:     m.Content,
		Sector:      string(m.Sector),
		Tier:        string(m.Tier),
		Importance:  m.Importance,
		Salience:    m.Salience,
		AccessCount: m.AccessCount,
		Tags:        m.Tags,
		Concepts:    m.Concepts,
		Files:       m.Files,
		Categories:  m.Categories,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   m.UpdatedAt.Format(time.RFC3339),
	}
	if m.Summary != nil {
		out.Summary = *m.Summary
	}
	if m.MemoryType != nil {
		out.MemoryType = string(*m.MemoryType)
	}
	return out
}

func toSessionOutput(s *store.Session) SessionOutput {
	if s == nil {
		return SessionOutput{}
	}
	out := SessionOutput{ID: s.ID, ProjectID: s.ProjectID, StartedAt: s.StartedAt.Format(time.RFC3339)}
	if s.EndedAt != nil {
		out.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	if s.Summary != nil {
		out.Summary = *s.Summary
	}
	return out
}

func toCodeSearchOutput(results []docsearch.Result) CodeSearchOutput {
	out := CodeSearchOutput{Results: make([]CodeSearchResult, 0, len(results))}
	for _, r := range results {
		cr := CodeSearchResult{Score: r.Score}
		if r.Document != nil {
			cr.Path = r.Document.Path
			cr.Language = r.Document.Language
		}
		if r.Chunk != nil {
			cr.Content = r.Chunk.Content
			cr.StartLine = r.Chunk.StartLine
			cr.EndLine = r.Chunk.EndLine
		}
		out.Results = append(out.Results, cr)
	}
	return out
}
