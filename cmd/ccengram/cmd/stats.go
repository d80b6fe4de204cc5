package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/store"
)

type statsReport struct {
	TotalMemories int            `json:"totalMemories"`
	BySector      map[string]int `json:"bySector"`
	ByTier        map[string]int `json:"byTier"`
	VectorOrphans int            `json:"vectorOrphans"`
	VectorLive    int            `json:"vectorLive"`
	OrphanRatio   float64        `json:"orphanRatio"`
}

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory sector/tier breakdown and vector index health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			memories, err := a.db.ListMemories(ctx, store.MemoryListFilter{ProjectID: a.project.ID})
			if err != nil {
				return fmt.Errorf("listing memories: %w", err)
			}

			rpt := statsReport{
				TotalMemories: len(memories),
				BySector:      map[string]int{},
				ByTier:        map[string]int{},
			}
			for _, m := range memories {
				rpt.BySector[string(m.Sector)]++
				rpt.ByTier[string(m.Tier)]++
			}

			if a.embedder != nil {
				ratio, orphans, live := a.db.VectorIndexStats("memory", a.embedder.GetActiveModelID())
				rpt.OrphanRatio, rpt.VectorOrphans, rpt.VectorLive = ratio, orphans, live
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rpt)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "total memories: %d\n", rpt.TotalMemories)
			fmt.Fprintln(cmd.OutOrStdout(), "by sector:")
			for sector, n := range rpt.BySector {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d\n", sector, n)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "by tier:")
			for tier, n := range rpt.ByTier {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d\n", tier, n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "memory vectors: %d live, %d orphaned (%.1f%%)\n", rpt.VectorLive, rpt.VectorOrphans, rpt.OrphanRatio*100)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
