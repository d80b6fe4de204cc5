package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/store"
	"github.com/JoeyEamigh/ccengram/internal/ui"
)

type statusReport struct {
	Project       string `json:"project"`
	ProjectID     string `json:"projectId"`
	MemoryCount   int    `json:"memoryCount"`
	IndexedFiles  int    `json:"indexedFiles"`
	LastIndexedAt string `json:"lastIndexedAt,omitempty"`
	ActiveSession string `json:"activeSession,omitempty"`
	BM25Backend   string `json:"bm25Backend"`
	EmbedProvider string `json:"embedProvider,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project, index, and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rpt := statusReport{
				Project:     a.project.Name,
				ProjectID:   a.project.ID,
				BM25Backend: a.cfg.Search.BM25Backend,
			}

			memories, err := a.db.ListMemories(ctx, store.MemoryListFilter{ProjectID: a.project.ID, Limit: 0})
			if err == nil {
				rpt.MemoryCount = len(memories)
			}

			if state, err := a.db.GetCodeIndexState(ctx, a.project.ID); err == nil && state != nil {
				rpt.IndexedFiles = state.IndexedFiles
				rpt.LastIndexedAt = state.LastIndexedAt.Format("2006-01-02 15:04:05")
			}

			if sess, err := a.sessions.Active(ctx, a.project.ID); err == nil && sess != nil {
				rpt.ActiveSession = sess.ID
			}

			if a.embedder != nil {
				rpt.EmbedProvider = a.embedder.ActiveProviderName()
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rpt)
			}

			out := cmd.OutOrStdout()
			styles := ui.GetStyles(!ui.IsTTY(out) || ui.DetectNoColor())

			fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("%s (%s)", rpt.Project, rpt.ProjectID)))
			fmt.Fprintf(out, "memories:       %s\n", styles.Label.Render(fmt.Sprintf("%d", rpt.MemoryCount)))
			fmt.Fprintf(out, "indexed files:  %s\n", styles.Label.Render(fmt.Sprintf("%d", rpt.IndexedFiles)))
			if rpt.LastIndexedAt != "" {
				fmt.Fprintf(out, "last indexed:   %s\n", rpt.LastIndexedAt)
			}
			if rpt.ActiveSession != "" {
				fmt.Fprintf(out, "active session: %s\n", styles.Success.Render(rpt.ActiveSession))
			} else {
				fmt.Fprintf(out, "active session: %s\n", styles.Dim.Render("none"))
			}
			fmt.Fprintf(out, "bm25 backend:   %s\n", rpt.BM25Backend)
			if rpt.EmbedProvider != "" {
				fmt.Fprintf(out, "embed provider: %s\n", styles.Success.Render(rpt.EmbedProvider))
			} else {
				fmt.Fprintf(out, "embed provider: %s\n", styles.Warning.Render("unavailable"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
