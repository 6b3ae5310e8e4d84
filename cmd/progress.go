package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/pipeline"
)

// newProgress draws a report counter on stderr. It is silent when quiet is
// set, so JSON logs on stdout stay clean in CI.
func newProgress(total int, description string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("reports"),
		progressbar.OptionShowIts(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// tick returns a RunStage callback that advances bar.
func tick(bar *progressbar.ProgressBar) func(model.Report, pipeline.Status) {
	return func(model.Report, pipeline.Status) {
		_ = bar.Add(1)
	}
}
