package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/model"
)

var syncSel selection

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local artifact tree with the object-store mirror",
	Long:  "Uploads local PDFs, enhanced images and CSVs missing from the mirror, and restores the artifacts the database expects but the local tree lacks.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := syncSel.reports(ctx, env.Store, model.ReportFilter{})
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Sync(ctx, reports)
		if err != nil {
			return err
		}

		zap.L().Info("sync complete",
			zap.Int("reports", len(reports)),
			zap.Int("uploaded", res.Uploaded),
			zap.Int("restored", res.Restored),
			zap.Int("missing", res.Missing),
		)
		return nil
	},
}

func init() {
	syncSel.bind(syncCmd)
	rootCmd.AddCommand(syncCmd)
}
