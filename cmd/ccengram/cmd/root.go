// Package cmd provides the CLI commands for ccengram, the external
// surface spec.md §1 scopes out of the core (store, embedding, dedup,
// memory, decay, relationships, hybrid search, chunker, scanner, pipeline,
// watcher). Every subcommand here is a thin adapter over the internal
// packages that implement spec.md §4's operations.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/logging"
	"github.com/JoeyEamigh/ccengram/pkg/version"
)

var debugMode bool

// NewRootCmd builds the ccengram command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ccengram",
		Short: "Per-project persistent memory and code search for LLM coding assistants",
		Long: `ccengram is a local-first memory engine and code indexing pipeline.

It classifies, deduplicates, ranks, and decays free-text memories, and
maintains a hybrid keyword + semantic index over a project's source tree,
both served over an MCP tool-call transport for coding assistants.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: startLogging,
	}
	cmd.SetVersionTemplate("ccengram version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to the ccengram log directory")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRememberCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// startLogging wires slog to the rotating file writer in debug mode; when
// disabled, the default logger stays on stderr so stdout is free for
// command output and, on `serve`, the MCP stdio transport.
func startLogging(cmd *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, _, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setting up debug logging: %w", err)
	}
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExecuteContext runs the root command bound to ctx, so subcommands (serve
// in particular) observe cancellation from an interrupt signal.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
