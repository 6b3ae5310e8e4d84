package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// Paths lays out the local artifact tree under Root:
//
//	PDFs_<yy>/<new_name>
//	PDFs_Lines_<yy>/Lines_<base>_page<n>.png
//	CSV_LF_<yy>_Sorted/<base>.csv
type Paths struct {
	Root string
	// TablePage is the page index baked into enhanced image names.
	TablePage int
	// DiffLog is the file name of the disagreement log in each CSV dir.
	DiffLog string
}

func yy(r model.Report) string { return model.NormalizeYear(r.Year) }

// PDFDir holds the source PDFs of a year.
func (p Paths) PDFDir(year string) string {
	return filepath.Join(p.Root, "PDFs_"+model.NormalizeYear(year))
}

// EnhancedDir holds the enhanced table images of a year.
func (p Paths) EnhancedDir(year string) string {
	return filepath.Join(p.Root, "PDFs_Lines_"+model.NormalizeYear(year))
}

// CSVDir holds the accepted per-report CSVs of a year.
func (p Paths) CSVDir(year string) string {
	return filepath.Join(p.Root, "CSV_LF_"+model.NormalizeYear(year)+"_Sorted")
}

// PDF is the local path of the report's source PDF.
func (p Paths) PDF(r model.Report) string {
	return filepath.Join(p.PDFDir(yy(r)), r.NewName)
}

// EnhancedName is the file name of the report's enhanced image.
func (p Paths) EnhancedName(r model.Report) string {
	if r.EnhancedName != "" {
		return r.EnhancedName
	}
	return fmt.Sprintf("Lines_%s_page%d.png", r.BaseName(), p.TablePage)
}

// Enhanced is the local path of the report's enhanced image.
func (p Paths) Enhanced(r model.Report) string {
	return filepath.Join(p.EnhancedDir(yy(r)), p.EnhancedName(r))
}

// CSV is the local path of the report's accepted rows.
func (p Paths) CSV(r model.Report) string {
	return filepath.Join(p.CSVDir(yy(r)), r.BaseName()+".csv")
}

// DiffLogPath is the disagreement log of a year.
func (p Paths) DiffLogPath(year string) string {
	name := p.DiffLog
	if name == "" {
		name = "differing_outputs.txt"
	}
	return filepath.Join(p.CSVDir(year), name)
}
