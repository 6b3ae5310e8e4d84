// Package export writes accepted case rows as CSV and XLSX.
package export

import (
	"cmp"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// Header is the column layout shared by every export.
var Header = []string{"Year", "Week", "States", "Suspected", "Confirmed", "Probable", "HCW", "Deaths"}

const (
	LatestCSV  = "lassa_data_latest.csv"
	LatestXLSX = "lassa_data_latest.xlsx"
)

// DatedCSV is the name of the snapshot written on day t.
func DatedCSV(t time.Time) string {
	return "lassa_data_" + t.Format("20060102") + ".csv"
}

func record(year, week int, r model.Row) []string {
	return []string{strconv.Itoa(year), strconv.Itoa(week), r.State,
		r.Suspected.String(), r.Confirmed.String(), r.Probable.String(), r.HCW.String(), r.Deaths.String()}
}

// TotalLast returns rows with the summary row moved to the end. Other rows
// keep their table order.
func TotalLast(rows []model.Row) []model.Row {
	out := make([]model.Row, 0, len(rows))
	var totals []model.Row
	for _, r := range rows {
		if r.IsTotal() {
			totals = append(totals, r)
			continue
		}
		out = append(out, r)
	}
	return append(out, totals...)
}

// WriteReportCSV writes the accepted rows of one report to path. The file
// appears atomically.
func WriteReportCSV(path string, report model.Report, rows []model.Row) error {
	year := report.FullYear()
	err := writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return err
		}
		for _, r := range TotalLast(rows) {
			if err := cw.Write(record(year, report.Week, r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	return eris.Wrapf(err, "export: write %s", path)
}

// SortCases orders cases newest week first, keeping each report's table
// order.
func SortCases(cases []model.CaseRecord) {
	slices.SortStableFunc(cases, func(a, b model.CaseRecord) int {
		if c := cmp.Compare(b.Year, a.Year); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Week, a.Week); c != 0 {
			return c
		}
		return cmp.Compare(a.Order, b.Order)
	})
}

// WriteCombinedCSV writes every case to dir as the latest file and a dated
// snapshot, returning both paths.
func WriteCombinedCSV(dir string, cases []model.CaseRecord, now time.Time) ([]string, error) {
	sorted := slices.Clone(cases)
	SortCases(sorted)

	var paths []string
	for _, name := range []string{LatestCSV, DatedCSV(now)} {
		path := filepath.Join(dir, name)
		err := writeAtomic(path, func(w io.Writer) error {
			cw := csv.NewWriter(w)
			if err := cw.Write(Header); err != nil {
				return err
			}
			for _, c := range sorted {
				if err := cw.Write(record(c.Year, c.Week, c.Row)); err != nil {
					return err
				}
			}
			cw.Flush()
			return cw.Error()
		})
		if err != nil {
			return paths, eris.Wrapf(err, "export: write %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := write(tmp); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
