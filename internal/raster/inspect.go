package raster

import (
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// Info summarizes a source PDF for the compatibility check.
type Info struct {
	Pages int
	// HasTable is true when the table page carries the case-table headers in
	// its text layer.
	HasTable bool
}

// Inspect opens pdfPath with a pure-Go parser, counts pages and looks for the
// case-table headers on tablePage (zero-based). A PDF the parser cannot open
// is structurally unusable for the pipeline.
func Inspect(pdfPath string, tablePage int) (*Info, error) {
	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: inspect %s", pdfPath)
	}
	defer f.Close()

	info := &Info{Pages: r.NumPage()}
	if tablePage < 0 || tablePage >= info.Pages {
		return info, nil
	}

	page := r.Page(tablePage + 1)
	if page.V.IsNull() {
		return info, nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		// Text layer is optional; rendering is what matters.
		return info, nil
	}
	info.HasTable = hasTableHeaders(text)
	return info, nil
}

func hasTableHeaders(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "suspected") && strings.Contains(t, "confirmed")
}
