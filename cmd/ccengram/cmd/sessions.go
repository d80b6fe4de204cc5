package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage project sessions",
	}
	cmd.AddCommand(newSessionsStartCmd())
	cmd.AddCommand(newSessionsEndCmd())
	cmd.AddCommand(newSessionsActiveCmd())
	return cmd
}

func newSessionsStartCmd() *cobra.Command {
	var context_ string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "End any active session and start a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.sessions.Start(ctx, a.project.ID, context_)
			if err != nil {
				return fmt.Errorf("starting session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&context_, "context", "", "free-form JSON context blob")
	return cmd
}

func newSessionsEndCmd() *cobra.Command {
	var summary string

	cmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session, promoting its high-salience memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var summaryPtr *string
			if summary != "" {
				summaryPtr = &summary
			}
			if err := a.sessions.End(ctx, args[0], summaryPtr); err != nil {
				return fmt.Errorf("ending session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ended %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "closing summary")
	return cmd
}

func newSessionsActiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Show the project's active session, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.sessions.Active(ctx, a.project.ID)
			if err != nil {
				return fmt.Errorf("loading active session: %w", err)
			}
			if sess == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no active session")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (started %s)\n", sess.ID, sess.StartedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	return cmd
}
