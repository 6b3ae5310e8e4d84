package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/store"
)

// selection holds the report-selection flags shared by the batch commands.
type selection struct {
	year  string
	limit int
	ids   []int64
}

func (s *selection) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.year, "year", "", "only reports of this year (e.g. 24 or 2024)")
	cmd.Flags().IntVar(&s.limit, "limit", 0, "max number of reports (0 = all)")
	cmd.Flags().Int64SliceVar(&s.ids, "id", nil, "process these report ids regardless of status")
}

// reports lists the reports matching base narrowed by the flags. Explicit
// ids bypass base so a report flagged for review can be retried.
func (s *selection) reports(ctx context.Context, st store.Store, base model.ReportFilter) ([]model.Report, error) {
	if len(s.ids) > 0 {
		out := make([]model.Report, 0, len(s.ids))
		for _, id := range s.ids {
			r, err := st.GetReport(ctx, id)
			if err != nil {
				return nil, eris.Wrapf(err, "get report %d", id)
			}
			out = append(out, *r)
		}
		return out, nil
	}
	base.Year = model.NormalizeYear(s.year)
	base.Limit = s.limit
	reports, err := st.ListReports(ctx, base)
	if err != nil {
		return nil, eris.Wrap(err, "list reports")
	}
	return reports, nil
}
