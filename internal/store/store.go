// Package store persists report metadata (website_data) and accepted case
// rows (lassa_data) in Postgres or SQLite.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface of the pipeline.
type Store interface {
	// Reports
	UpsertReports(ctx context.Context, reports []model.Report) (int64, error)
	ListReports(ctx context.Context, filter model.ReportFilter) ([]model.Report, error)
	GetReport(ctx context.Context, id int64) (*model.Report, error)
	MarkDownloaded(ctx context.Context, id int64) error
	MarkIncompatible(ctx context.Context, id int64) error
	MarkEnhanced(ctx context.Context, id int64, enhancedName string) error
	MarkReview(ctx context.Context, id int64) error

	// SaveExtraction replaces the report's case rows and marks it processed
	// in one transaction.
	SaveExtraction(ctx context.Context, report model.Report, rows []model.Row) error

	// Cases
	ListCases(ctx context.Context, filter model.CaseFilter) ([]model.CaseRecord, error)
	// CanonicalizeStates renames stored state names through fn and returns
	// the number of rows changed. Renames that would duplicate a state
	// within one report week are left alone.
	CanonicalizeStates(ctx context.Context, fn func(string) (string, bool)) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const reportColumns = `id, new_name, year, week, link, compatible, downloaded, enhanced, enhanced_name, processed, updated_at`

const caseColumns = `report_id, year, week, states, suspected, confirmed, probable, hcw, deaths, row_order`

// placeholder renders the n-th (1-based) bind parameter.
type placeholder func(n int) string

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

// reportQuery builds the listing query for filter.
func reportQuery(f model.ReportFilter, ph placeholder) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, ph(len(args))))
	}
	if f.Year != "" {
		add("year = %s", model.NormalizeYear(f.Year))
	}
	if f.Compatible != nil {
		add("compatible = %s", *f.Compatible)
	}
	if f.Downloaded != nil {
		add("downloaded = %s", *f.Downloaded)
	}
	if f.Enhanced != nil {
		add("enhanced = %s", *f.Enhanced)
	}
	if f.Processed != nil {
		add("processed = %s", string(*f.Processed))
	}

	q := "SELECT " + reportColumns + " FROM website_data"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY year, week, new_name"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT " + ph(len(args))
	}
	return q, args
}

// caseQuery builds the case listing query, newest week first with each
// report's rows in table order.
func caseQuery(f model.CaseFilter, ph placeholder) (string, []any) {
	var where []string
	var args []any
	if f.Year > 0 {
		args = append(args, f.Year)
		where = append(where, "year = "+ph(len(args)))
	}
	if f.Week > 0 {
		args = append(args, f.Week)
		where = append(where, "week = "+ph(len(args)))
	}
	q := "SELECT " + caseColumns + " FROM lassa_data"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY year DESC, week DESC, row_order", args
}

// caseRow is one lassa_data row ready for insertion.
type caseRow struct {
	state string
	order int
	row   model.Row
}

// prepareCases drops rows without a state and keeps the first row for each
// state, since (year, week, states) is unique.
func prepareCases(rows []model.Row) []caseRow {
	seen := make(map[string]bool, len(rows))
	out := make([]caseRow, 0, len(rows))
	for i, r := range rows {
		state := strings.TrimSpace(r.State)
		if state == "" || seen[state] {
			continue
		}
		seen[state] = true
		out = append(out, caseRow{state: state, order: i, row: r})
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable) (*model.Report, error) {
	var r model.Report
	var processed string
	if err := row.Scan(&r.ID, &r.NewName, &r.Year, &r.Week, &r.Link, &r.Compatible,
		&r.Downloaded, &r.Enhanced, &r.EnhancedName, &processed, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Processed = model.ProcessStatus(processed)
	return &r, nil
}

func scanCase(row scannable) (model.CaseRecord, error) {
	var c model.CaseRecord
	var s, cf, p, h, d *int
	if err := row.Scan(&c.ReportID, &c.Year, &c.Week, &c.State, &s, &cf, &p, &h, &d, &c.Order); err != nil {
		return c, err
	}
	c.Suspected = model.CountFromPtr(s)
	c.Confirmed = model.CountFromPtr(cf)
	c.Probable = model.CountFromPtr(p)
	c.HCW = model.CountFromPtr(h)
	c.Deaths = model.CountFromPtr(d)
	return c, nil
}
