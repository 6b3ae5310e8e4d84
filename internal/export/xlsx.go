package export

import (
	"io"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// SheetName is the worksheet holding the case rows.
const SheetName = "lassa_data"

// WriteXLSX writes every case to a single-sheet workbook. Counts are numeric
// cells; blank counts are empty cells.
func WriteXLSX(path string, cases []model.CaseRecord) error {
	sorted := slices.Clone(cases)
	SortCases(sorted)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}
	for _, c := range sorted {
		row := sheet.AddRow()
		row.AddCell().SetInt(c.Year)
		row.AddCell().SetInt(c.Week)
		row.AddCell().SetString(c.State)
		for _, n := range []model.Count{c.Suspected, c.Confirmed, c.Probable, c.HCW, c.Deaths} {
			cell := row.AddCell()
			if n.Valid {
				cell.SetInt(n.Value)
			}
		}
	}

	err = writeAtomic(path, func(w io.Writer) error { return f.Write(w) })
	return eris.Wrapf(err, "export: write %s", path)
}
