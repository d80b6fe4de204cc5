package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/preflight"
)

var errDoctorFailed = errors.New("one or more required checks failed")

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight checks (disk space, memory, permissions, embedder model)",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				root, _ = os.Getwd()
			}

			checker := preflight.New(
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			results := checker.RunAll(cmd.Context(), root)
			checker.PrintResults(results)

			if checker.HasCriticalFailures(results) {
				return errDoctorFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show check details")
	return cmd
}
