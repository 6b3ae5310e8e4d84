package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/pipeline"
)

var (
	enhanceSel selection
	extractSel selection
	runSel     selection
	stageQuiet bool
)

// stageCommand builds a batch command for one pipeline stage.
func stageCommand(use, short string, stage pipeline.Stage, mode string, sel *selection, filter func() model.ReportFilter) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := initPipeline(ctx, mode)
			if err != nil {
				return err
			}
			defer env.Close()

			reports, err := sel.reports(ctx, env.Store, filter())
			if err != nil {
				return err
			}

			bar := newProgress(len(reports), use, stageQuiet)
			sum, err := env.Pipeline.RunStage(ctx, stage, reports, tick(bar))
			_ = bar.Finish()
			if err != nil {
				return err
			}

			zap.L().Info(use+" complete", append([]zap.Field{zap.Int("reports", len(reports))}, sum.Fields()...)...)
			return nil
		},
	}
}

var enhanceCmd = stageCommand("enhance", "Render and enhance the table page of downloaded reports",
	pipeline.StageEnhance, "enhance", &enhanceSel,
	func() model.ReportFilter {
		return model.ReportFilter{Compatible: model.Bool(true), Downloaded: model.Bool(true), Enhanced: model.Bool(false)}
	})

var extractCmd = stageCommand("extract", "Extract and reconcile the tables of enhanced reports",
	pipeline.StageExtract, "extract", &extractSel,
	func() model.ReportFilter {
		return model.ReportFilter{Compatible: model.Bool(true), Enhanced: model.Bool(true), Processed: model.Status(model.ProcessPending)}
	})

var runCmd = stageCommand("run", "Enhance then extract every pending report",
	pipeline.StageAll, "run", &runSel,
	func() model.ReportFilter {
		return model.ReportFilter{Compatible: model.Bool(true), Downloaded: model.Bool(true), Processed: model.Status(model.ProcessPending)}
	})

func init() {
	for _, c := range []struct {
		cmd *cobra.Command
		sel *selection
	}{{enhanceCmd, &enhanceSel}, {extractCmd, &extractSel}, {runCmd, &runSel}} {
		c.sel.bind(c.cmd)
		c.cmd.Flags().BoolVarP(&stageQuiet, "quiet", "q", false, "disable the progress bar")
		rootCmd.AddCommand(c.cmd)
	}
}
