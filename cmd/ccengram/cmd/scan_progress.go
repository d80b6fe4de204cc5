package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/JoeyEamigh/ccengram/internal/ui"
)

// scanProgressReporter drives internal/scanner.ScanForIndexing's onProgress
// callback, which fires every 100 files examined with no known total ahead
// of time. On a terminal it renders an indeterminate schollz/progressbar
// spinner; otherwise (CI, pipes, --no-tui) it falls back to one line per
// update, the same terminal/CI split ziadkadry99-auto-doc's progress.Reporter
// uses for its doc-generation progress.
type scanProgressReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newScanProgressReporter(out io.Writer, forcePlain bool) *scanProgressReporter {
	r := &scanProgressReporter{out: out}
	if !forcePlain && ui.IsTTY(out) && !ui.DetectCI() {
		r.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return r
}

func (r *scanProgressReporter) update(scanned int) {
	if r.bar != nil {
		r.bar.Describe(fmt.Sprintf("scanning (%d files)", scanned))
		_ = r.bar.Add(1)
		return
	}
	fmt.Fprintf(r.out, "scanning... %d files\n", scanned)
}

func (r *scanProgressReporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}
