package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/export"
	"github.com/sells-group/sitrep-cli/internal/model"
)

var (
	exportDir  string
	exportYear int
	exportXLSX bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the combined lassa_data CSV (and optionally XLSX)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		year := exportYear
		if year > 0 && year < 100 {
			year += 2000
		}
		cases, err := st.ListCases(ctx, model.CaseFilter{Year: year})
		if err != nil {
			return eris.Wrap(err, "list cases")
		}
		if len(cases) == 0 {
			zap.L().Warn("no accepted cases to export")
			return nil
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Data.Root
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create %s", dir)
		}

		written, err := export.WriteCombinedCSV(dir, cases, time.Now())
		if err != nil {
			return err
		}
		if exportXLSX {
			path := filepath.Join(dir, export.LatestXLSX)
			if err := export.WriteXLSX(path, cases); err != nil {
				return err
			}
			written = append(written, path)
		}

		zap.L().Info("export complete",
			zap.Int("rows", len(cases)),
			zap.Strings("files", written),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default data.root)")
	exportCmd.Flags().IntVar(&exportYear, "year", 0, "only this year (0 = all)")
	exportCmd.Flags().BoolVar(&exportXLSX, "xlsx", false, "also write an XLSX workbook")
	rootCmd.AddCommand(exportCmd)
}
