package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/fetcher"
	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/store"
)

var importCatalogPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the report catalog (CSV or XLSX) into website_data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := fetcher.ReadCatalog(ctx, importCatalogPath)
		if err != nil {
			return eris.Wrap(err, "read catalog")
		}

		reports := make([]model.Report, len(entries))
		for i, e := range entries {
			reports[i] = e.Report
		}
		n, err := st.UpsertReports(ctx, reports)
		if err != nil {
			return eris.Wrap(err, "import catalog")
		}

		incompatible, err := markIncompatible(ctx, st, entries)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("catalog", importCatalogPath),
			zap.Int("entries", len(entries)),
			zap.Int64("upserted", n),
			zap.Int("incompatible", incompatible),
		)
		return nil
	},
}

// markIncompatible carries the catalog's compatible=N flags over by name,
// since upserts do not return ids.
func markIncompatible(ctx context.Context, st store.Store, entries []fetcher.Entry) (int, error) {
	flagged := make(map[string]bool)
	for _, e := range entries {
		if e.Incompatible {
			flagged[e.Report.NewName] = true
		}
	}
	if len(flagged) == 0 {
		return 0, nil
	}

	reports, err := st.ListReports(ctx, model.ReportFilter{Compatible: model.Bool(true)})
	if err != nil {
		return 0, eris.Wrap(err, "list reports")
	}
	n := 0
	for _, r := range reports {
		if !flagged[r.NewName] {
			continue
		}
		if err := st.MarkIncompatible(ctx, r.ID); err != nil {
			return n, eris.Wrapf(err, "mark %s incompatible", r.NewName)
		}
		n++
	}
	return n, nil
}

func init() {
	importCmd.Flags().StringVar(&importCatalogPath, "catalog", "", "path to the report catalog, .csv or .xlsx (required)")
	_ = importCmd.MarkFlagRequired("catalog")
	rootCmd.AddCommand(importCmd)
}
