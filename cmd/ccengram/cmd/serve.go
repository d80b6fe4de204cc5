package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/broadcast"
	"github.com/JoeyEamigh/ccengram/internal/hooks"
	"github.com/JoeyEamigh/ccengram/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project over MCP (stdio) or HTTP (hooks + websocket broadcast)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			switch transport {
			case "", "stdio":
				srv, err := mcp.NewServer(a.db, a.memories, a.recall, a.rels, a.sessions, a.docs, a.embedder, a.cfg, a.root)
				if err != nil {
					return fmt.Errorf("constructing mcp server: %w", err)
				}
				defer srv.Close()
				return srv.Serve(ctx, "stdio")

			case "http":
				return serveHTTP(ctx, a, addr)

			default:
				return fmt.Errorf("unsupported transport %q (use stdio or http)", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "stdio (MCP tool-call) or http (hooks + websocket broadcast)")
	cmd.Flags().StringVar(&addr, "addr", ":7417", "listen address for --transport=http")
	return cmd
}

// serveHTTP mounts the §6 external HTTP surface: the hook webhook and the
// websocket broadcast hub, both fed by the same memory store the MCP tools
// use. It has no relation to the MCP transport; a coding assistant talks
// to MCP over stdio while a dashboard UI talks to this over HTTP.
func serveHTTP(ctx context.Context, a *app, addr string) error {
	hub := broadcast.NewHub(a.memories)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	hooks.RegisterRoutes(r, a.memories, hub)
	r.Get("/api/ws", hub.ServeHTTP)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
