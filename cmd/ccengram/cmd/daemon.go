package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/daemon"
	"github.com/JoeyEamigh/ccengram/internal/docsearch"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run a long-lived local search daemon over a Unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := daemon.DefaultConfig()
			srv, err := daemon.NewServer(cfg.SocketPath)
			if err != nil {
				return fmt.Errorf("constructing daemon server: %w", err)
			}
			srv.SetHandler(&daemonHandler{app: a, started: time.Now()})

			fmt.Fprintf(cmd.OutOrStdout(), "daemon listening on %s\n", cfg.SocketPath)
			return srv.ListenAndServe(ctx)
		},
	}
	return cmd
}

// daemonHandler adapts app's docsearch engine to daemon.RequestHandler, the
// Unix-socket RPC surface a local dashboard or editor plugin talks to
// without paying MCP's stdio framing cost.
type daemonHandler struct {
	app     *app
	started time.Time
}

func (h *daemonHandler) HandleSearch(ctx context.Context, params daemon.SearchParams) ([]daemon.SearchResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	results, err := h.app.docs.Search(ctx, docsearch.Request{
		Query:     params.Query,
		ProjectID: h.app.project.ID,
		Limit:     limit,
		DocsOnly:  params.Filter == "docs",
		CodeOnly:  params.Filter == "code",
	})
	if err != nil {
		return nil, fmt.Errorf("daemon search: %w", err)
	}

	out := make([]daemon.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, daemon.SearchResult{
			FilePath:  r.Document.Path,
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Score:     r.Score,
			Content:   r.Chunk.Content,
			Language:  r.Document.Language,
			BM25Rank:  r.BM25Rank,
			VecRank:   r.VecRank,
		})
	}
	return out, nil
}

func (h *daemonHandler) GetStatus() daemon.StatusResult {
	embedderStatus := "fallback"
	embedderType := ""
	if h.app.embedder != nil {
		embedderType = h.app.embedder.ActiveProviderName()
		embedderStatus = "ready"
	}
	return daemon.StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		EmbedderType:   embedderType,
		EmbedderStatus: embedderStatus,
		ProjectsLoaded: 1,
	}
}
