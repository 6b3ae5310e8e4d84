package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// Entry is one catalog row.
type Entry struct {
	Report model.Report
	// Incompatible is set when the scraper already flagged the PDF unusable.
	Incompatible bool
}

// ReadCatalog reads the scraper's report catalog. Columns are matched by
// header name, case-insensitively: year, week, new_name and link, plus the
// optional Y/N flags downloaded and compatible. Files ending in .xlsx are
// read from their first sheet; anything else is parsed as CSV.
func ReadCatalog(ctx context.Context, path string) ([]Entry, error) {
	var records [][]string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		records, err = readXLSX(path)
	} else {
		records, err = readCSV(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("fetcher: catalog %s is empty", path)
	}
	return parseCatalog(records)
}

func readCSV(ctx context.Context, path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var out [][]string
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		out = append(out, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}
	var out [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		out = append(out, cells)
	}
	return out, nil
}

func parseCatalog(records [][]string) ([]Entry, error) {
	col := make(map[string]int)
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"year", "week", "new_name"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("fetcher: catalog is missing column %q", required)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Entry
	for n, rec := range records[1:] {
		name := get(rec, "new_name")
		if name == "" {
			continue
		}
		week, err := strconv.Atoi(strings.TrimSuffix(get(rec, "week"), ".0"))
		if err != nil {
			return nil, eris.Errorf("fetcher: catalog row %d: bad week %q", n+2, get(rec, "week"))
		}
		year := strings.TrimSuffix(get(rec, "year"), ".0")
		if year == "" {
			return nil, eris.Errorf("fetcher: catalog row %d: missing year", n+2)
		}
		out = append(out, Entry{
			Report: model.Report{
				NewName:    name,
				Year:       model.NormalizeYear(year),
				Week:       week,
				Link:       get(rec, "link"),
				Downloaded: flag(get(rec, "downloaded")),
			},
			Incompatible: strings.EqualFold(get(rec, "compatible"), "N"),
		})
	}
	return out, nil
}

func flag(v string) bool {
	switch strings.ToUpper(v) {
	case "Y", "YES", "TRUE", "1":
		return true
	}
	return false
}
