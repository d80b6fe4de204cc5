package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoeyEamigh/ccengram/internal/pipeline"
	"github.com/JoeyEamigh/ccengram/internal/scanner"
	"github.com/JoeyEamigh/ccengram/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var workers int
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the project and build or refresh the code index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			started := time.Now()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithProjectDir(a.root))
			renderer := ui.NewRenderer(uiCfg)
			if err := renderer.Start(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: progress renderer failed to start: %v\n", err)
			}
			defer func() { _ = renderer.Stop() }()

			sc, err := scanner.New()
			if err != nil {
				return fmt.Errorf("constructing scanner: %w", err)
			}

			opts := &scanner.ScanOptions{
				RootDir:          a.root,
				IncludePatterns:  a.cfg.Paths.Include,
				ExcludePatterns:  a.cfg.Paths.Exclude,
				RespectGitignore: true,
				Workers:          workers,
				Submodules:       &a.cfg.Submodules,
			}

			scanBar := newScanProgressReporter(cmd.ErrOrStderr(), noTUI)
			renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "scanning project..."})

			scanStart := time.Now()
			report, err := sc.ScanForIndexing(ctx, opts, func(scanned int) {
				scanBar.update(scanned)
				renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Current: scanned, Message: fmt.Sprintf("%d files scanned", scanned)})
			})
			scanBar.finish()
			if err != nil {
				return fmt.Errorf("scanning project: %w", err)
			}
			scanDuration := time.Since(scanStart)
			fmt.Fprintf(cmd.OutOrStdout(), "found %d files to consider (%d skipped)\n", len(report.Files), report.SkippedCount)

			cfg := pipeline.Auto(len(report.Files))
			files := pipeline.FilesFromScan(ctx, a.db, a.project.ID, report, cfg.ScannerBuffer, func(relPath string) (string, error) {
				return readFileContent(filepath.Join(a.root, relPath))
			})
			p := pipeline.New(cfg, pipeline.Deps{
				DB:       a.db,
				Embedder: a.embedder,
				Limiter:  a.limiter,
			})

			indexStart := time.Now()
			total := len(report.Files)
			var lastProgress pipeline.Progress
			p.Run(ctx, a.project.ID, files, nil, func(prog pipeline.Progress) {
				lastProgress = prog
				renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   ui.StageIndexing,
					Current: prog.FilesWritten,
					Total:   total,
					Message: fmt.Sprintf("%d files, %d chunks indexed", prog.FilesWritten, prog.ChunksWritten),
				})
			})
			indexDuration := time.Since(indexStart)

			for _, fe := range lastProgress.Errors {
				renderer.AddError(ui.ErrorEvent{File: fe.Path, Err: fmt.Errorf("%s: %w", fe.Stage, fe.Err)})
			}

			stats := ui.CompletionStats{
				Files:    lastProgress.FilesWritten,
				Chunks:   lastProgress.ChunksWritten,
				Duration: time.Since(started),
				Errors:   len(lastProgress.Errors),
				Stages: ui.StageTimings{
					Scan:  scanDuration,
					Index: indexDuration,
				},
			}
			if a.embedder != nil {
				stats.Embedder = ui.EmbedderInfo{
					Backend:    a.embedder.ActiveProviderName(),
					Model:      a.embedder.GetActiveModelID(),
					Dimensions: a.embedder.Dimensions(),
				}
			}
			renderer.Complete(stats)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "scanner worker count (0 = NumCPU)")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "disable interactive TUI, use plain text output")
	return cmd
}

// readFileContent is the pipeline's file reader callback; a plain
// os.ReadFile is enough since the reader stage already pools workers.
func readFileContent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
