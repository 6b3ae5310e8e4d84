package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/fetcher"
	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/objstore"
	"github.com/sells-group/sitrep-cli/internal/resilience"
)

var (
	downloadSel     selection
	downloadRate    float64
	downloadTimeout time.Duration
	downloadQuiet   bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the PDFs of catalogued reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mirror, err := initMirror(ctx)
		if err != nil {
			return eris.Wrap(err, "init mirror")
		}
		keys := objstore.Keys{Prefix: cfg.ObjStore.Prefix}
		paths := artifactPaths()

		reports, err := downloadSel.reports(ctx, st, model.ReportFilter{Compatible: model.Bool(true), Downloaded: model.Bool(false)})
		if err != nil {
			return err
		}

		retry := resilience.DefaultRetryConfig()
		retry.Attempts = 4
		retry.Initial = 2 * time.Second
		dl := fetcher.NewDownloader(fetcher.Options{
			Timeout:       downloadTimeout,
			RatePerSecond: downloadRate,
			Retry:         retry,
		}, zap.L())

		var fetched, present, broken, failed int
		bar := newProgress(len(reports), "download", downloadQuiet)
		defer bar.Finish() //nolint:errcheck

		for _, r := range reports {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "download interrupted")
			}
			_ = bar.Add(1)
			log := zap.L().With(zap.Int64("report_id", r.ID), zap.String("report", r.NewName))
			path := paths.PDF(r)

			if _, err := os.Stat(path); err == nil {
				present++
			} else {
				if r.Link == "" {
					log.Warn("report has no link, skipping")
					failed++
					continue
				}
				n, err := dl.Download(ctx, r.Link, path)
				if errors.Is(err, fetcher.ErrNotPDF) {
					log.Warn("link does not serve a PDF, flagging incompatible", zap.String("link", r.Link))
					if err := st.MarkIncompatible(ctx, r.ID); err != nil {
						return eris.Wrapf(err, "mark %s incompatible", r.NewName)
					}
					broken++
					continue
				}
				if err != nil {
					log.Error("download failed", zap.Error(err))
					failed++
					continue
				}
				log.Debug("downloaded report", zap.Int64("bytes", n))
				fetched++
			}

			if err := st.MarkDownloaded(ctx, r.ID); err != nil {
				return eris.Wrapf(err, "mark %s downloaded", r.NewName)
			}
			if mirror != nil {
				data, err := os.ReadFile(path)
				if err == nil {
					err = mirror.Put(ctx, keys.PDF(r), data, "application/pdf")
				}
				if err != nil {
					log.Warn("mirror upload failed", zap.Error(err))
				}
			}
		}

		zap.L().Info("download complete",
			zap.Int("reports", len(reports)),
			zap.Int("downloaded", fetched),
			zap.Int("already_present", present),
			zap.Int("broken_links", broken),
			zap.Int("failed", failed),
		)
		return nil
	},
}

func init() {
	downloadSel.bind(downloadCmd)
	downloadCmd.Flags().Float64Var(&downloadRate, "rate", 1, "max requests per second to the publisher")
	downloadCmd.Flags().DurationVar(&downloadTimeout, "timeout", 60*time.Second, "per-request timeout")
	downloadCmd.Flags().BoolVarP(&downloadQuiet, "quiet", "q", false, "disable the progress bar")
	rootCmd.AddCommand(downloadCmd)
}
