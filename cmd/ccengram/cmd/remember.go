package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/memory"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

func newRememberCmd() *cobra.Command {
	var sector string
	var tier string
	var importance float64
	var tags []string
	var files []string

	cmd := &cobra.Command{
		Use:   "remember <content>",
		Short: "Store a new memory for this project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req := memory.CreateRequest{
				ProjectID:  a.project.ID,
				Content:    args[0],
				Sector:     store.Sector(sector),
				Tier:       store.Tier(tier),
				Importance: importance,
				Tags:       tags,
				Files:      files,
			}
			if active, err := a.db.GetActiveSession(ctx, a.project.ID); err == nil && active != nil {
				req.SessionID = active.ID
			}

			m, err := a.memories.Create(ctx, req)
			if err != nil {
				return fmt.Errorf("creating memory: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remembered %s (sector=%s tier=%s)\n", m.ID, m.Sector, m.Tier)
			return nil
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "cognitive sector (episodic, semantic, procedural, emotional, reflective); inferred if omitted")
	cmd.Flags().StringVar(&tier, "tier", "", "scope (session, project, global); defaults to session")
	cmd.Flags().Float64Var(&importance, "importance", 0.5, "initial importance, 0-1")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tags to attach (repeatable)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "related file paths (repeatable)")
	return cmd
}
