// Package raster renders PDF pages to bitmaps and inspects source PDFs.
package raster

import (
	"context"
	"errors"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rotisserie/eris"
)

// ErrPageOutOfRange is returned when the document has fewer pages than requested.
var ErrPageOutOfRange = errors.New("raster: page out of range")

// Rasterizer renders one page of a PDF at a fixed resolution.
type Rasterizer interface {
	Render(ctx context.Context, pdfPath string, pageIndex int, dpi float64) (*image.RGBA, error)
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct{}

// NewFitzRasterizer returns a MuPDF-backed Rasterizer.
func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

// Render opens pdfPath, renders page pageIndex (zero-based) at dpi and closes
// the document again.
func (f *FitzRasterizer) Render(ctx context.Context, pdfPath string, pageIndex int, dpi float64) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", pdfPath)
	}
	defer doc.Close()

	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return nil, eris.Wrapf(ErrPageOutOfRange, "raster: %s has %d pages, want index %d", pdfPath, doc.NumPage(), pageIndex)
	}

	img, err := doc.ImageDPI(pageIndex, dpi)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: render page %d of %s", pageIndex, pdfPath)
	}
	return img, nil
}
