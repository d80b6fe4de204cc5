package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/configs"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize ccengram for the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting working directory: %w", err)
			}

			configPath := filepath.Join(wd, ".ccengram.yaml")
			if _, err := os.Stat(configPath); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", configPath)
			} else {
				if err := os.WriteFile(configPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
					return fmt.Errorf("writing config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			}

			dataDir := filepath.Join(wd, dataDirName)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return fmt.Errorf("initializing store: %w", err)
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "project %s ready (id %s)\n", a.project.Name, a.project.ID)
			return nil
		},
	}
	return cmd
}
