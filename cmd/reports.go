package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/pipeline"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect and check situation reports",
	Long:  "Commands for listing reports, checking downloaded PDFs and summarizing pipeline progress per year.",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports and their pipeline flags",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		year, _ := cmd.Flags().GetString("year")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := model.ReportFilter{Year: model.NormalizeYear(year), Limit: limit}
		if status != "" {
			ps := model.ProcessStatus(status)
			if ps != model.ProcessPending && ps != model.ProcessDone && ps != model.ProcessReview {
				return eris.Errorf("unknown status %q (want N, Y or R)", status)
			}
			filter.Processed = &ps
		}

		reports, err := st.ListReports(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}
		formatReports(os.Stdout, reports)
		return nil
	},
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func formatReports(w io.Writer, reports []model.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tYEAR\tWEEK\tNAME\tDOWNLOADED\tCOMPATIBLE\tENHANCED\tPROCESSED")
	for _, r := range reports {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Year, r.Week, r.NewName,
			yn(r.Downloaded), yn(r.Compatible), yn(r.Enhanced), r.Processed)
	}
	_ = tw.Flush()
}

// -- reports check --

var reportsCheckSel selection

var reportsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify downloaded PDFs and flag unusable ones incompatible",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "check")
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := reportsCheckSel.reports(ctx, env.Store, model.ReportFilter{Compatible: model.Bool(true), Enhanced: model.Bool(false)})
		if err != nil {
			return err
		}

		counts := make(map[pipeline.Status]int)
		for _, r := range reports {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "reports check interrupted")
			}
			status, err := env.Pipeline.CheckReport(ctx, r)
			if err != nil {
				zap.L().Error("check failed", zap.String("report", r.NewName), zap.Error(err))
				status = pipeline.StatusFailed
			}
			counts[status]++
		}

		zap.L().Info("reports check complete",
			zap.Int("reports", len(reports)),
			zap.Int("compatible", counts[pipeline.StatusCompatible]),
			zap.Int("incompatible", counts[pipeline.StatusIncompatible]),
			zap.Int("missing", counts[pipeline.StatusMissing]),
			zap.Int("failed", counts[pipeline.StatusFailed]),
		)
		return nil
	},
}

// -- reports status --

// yearStatus aggregates pipeline progress for one year.
type yearStatus struct {
	Year         string
	Total        int
	Downloaded   int
	Incompatible int
	Enhanced     int
	Processed    int
	Review       int
}

func summarizeReports(reports []model.Report) []yearStatus {
	byYear := make(map[string]*yearStatus)
	for _, r := range reports {
		ys, ok := byYear[r.Year]
		if !ok {
			ys = &yearStatus{Year: r.Year}
			byYear[r.Year] = ys
		}
		ys.Total++
		if r.Downloaded {
			ys.Downloaded++
		}
		if !r.Compatible {
			ys.Incompatible++
		}
		if r.Enhanced {
			ys.Enhanced++
		}
		switch r.Processed {
		case model.ProcessDone:
			ys.Processed++
		case model.ProcessReview:
			ys.Review++
		}
	}
	out := make([]yearStatus, 0, len(byYear))
	for _, ys := range byYear {
		out = append(out, *ys)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func formatStatus(w io.Writer, rows []yearStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tREPORTS\tDOWNLOADED\tINCOMPATIBLE\tENHANCED\tPROCESSED\tREVIEW")
	for _, s := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			s.Year, s.Total, s.Downloaded, s.Incompatible, s.Enhanced, s.Processed, s.Review)
	}
	_ = tw.Flush()
}

var reportsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize pipeline progress per year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		year, _ := cmd.Flags().GetString("year")
		reports, err := st.ListReports(ctx, model.ReportFilter{Year: model.NormalizeYear(year)})
		if err != nil {
			return eris.Wrap(err, "reports status")
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}
		formatStatus(os.Stdout, summarizeReports(reports))
		return nil
	},
}

func init() {
	reportsListCmd.Flags().String("year", "", "filter by year (e.g. 24 or 2024)")
	reportsListCmd.Flags().String("status", "", "filter by processed flag: N, Y or R")
	reportsListCmd.Flags().Int("limit", 0, "max number of reports (0 = all)")
	reportsListCmd.Flags().Bool("json", false, "print JSON instead of a table")

	reportsCheckSel.bind(reportsCheckCmd)

	reportsStatusCmd.Flags().String("year", "", "filter by year")

	reportsCmd.AddCommand(reportsListCmd, reportsCheckCmd, reportsStatusCmd)
	rootCmd.AddCommand(reportsCmd)
}
