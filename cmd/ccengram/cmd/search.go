package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/docsearch"
	"github.com/JoeyEamigh/ccengram/internal/recall"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search memories and indexed code",
	}
	cmd.AddCommand(newSearchMemoryCmd())
	cmd.AddCommand(newSearchCodeCmd())
	return cmd
}

func newSearchMemoryCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "memory <query>",
		Short: "Hybrid keyword + semantic search over memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.recall.Search(ctx, recall.Request{
				Query:     args[0],
				ProjectID: a.project.ID,
				Limit:     limit,
			})
			if err != nil {
				return fmt.Errorf("searching memories: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.3f %s] %s\n", i+1, r.Score, r.MatchType, truncate(r.Memory.Content, 120))
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newSearchCodeCmd() *cobra.Command {
	var limit int
	var asJSON bool
	var docsOnly bool

	cmd := &cobra.Command{
		Use:   "code <query>",
		Short: "Hybrid keyword + semantic search over indexed source and docs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.docs.Search(ctx, docsearch.Request{
				Query:     args[0],
				ProjectID: a.project.ID,
				Limit:     limit,
				DocsOnly:  docsOnly,
			})
			if err != nil {
				return fmt.Errorf("searching code: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.3f] %s\n", i+1, r.Score, r.Document.Path)
				fmt.Fprintln(cmd.OutOrStdout(), "   "+truncate(r.Chunk.Content, 160))
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&docsOnly, "docs-only", false, "restrict to non-code documents")
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
