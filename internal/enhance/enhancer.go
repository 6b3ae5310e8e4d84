// Package enhance turns one page of a situation report into a cropped,
// gridline-enhanced PNG of its case table.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/raster"
)

// ErrRender marks a page that could not be rendered. The report should be
// flagged incompatible when this persists.
var ErrRender = errors.New("enhance: render failed")

// RenderError wraps the rasterizer failure for one source PDF.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("enhance: render %s: %v", e.Path, e.Err)
}

// Unwrap exposes both ErrRender and the underlying cause to errors.Is.
func (e *RenderError) Unwrap() []error { return []error{ErrRender, e.Err} }

// Request describes one enhancement.
type Request struct {
	SourcePath string
	PageIndex  int
	OutputPath string
	Year       string
	Week       int
	Color      ColorParams
	Lines      LineParams
	DPI        float64
}

// Result reports what the enhancement found.
type Result struct {
	Band       Band
	Layout     Layout
	PageIndex  int
	Vertical   int
	Horizontal int
	Crop       image.Rectangle
}

// Enhancer renders, locates, overlays gridlines, crops and writes the table image.
type Enhancer struct {
	rasterizer raster.Rasterizer
	layouts    *Layouts
	logger     *zap.Logger
}

// New creates an Enhancer. A nil layouts table uses DefaultLayouts.
func New(r raster.Rasterizer, layouts *Layouts, logger *zap.Logger) *Enhancer {
	if layouts == nil {
		layouts = DefaultLayouts()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Enhancer{rasterizer: r, layouts: layouts, logger: logger}
}

// Enhance produces req.OutputPath. Output is written through a temporary
// file in the same directory, so a failed run leaves nothing behind. It does
// not check whether the output already exists.
func (e *Enhancer) Enhance(ctx context.Context, req Request) (*Result, error) {
	layout := e.layouts.Lookup(req.Year, req.Week)
	page := req.PageIndex
	if layout.PageIndex != nil {
		page = *layout.PageIndex
	}
	log := e.logger.With(
		zap.String("source", req.SourcePath),
		zap.String("year", req.Year),
		zap.Int("week", req.Week),
		zap.Int("page", page),
	)

	img, err := e.rasterizer.Render(ctx, req.SourcePath, page, req.DPI)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &RenderError{Path: req.SourcePath, Err: err}
	}

	band := Locator{Params: req.Color}.Locate(img)
	if band.FellBack {
		log.Warn("enhance: banner colour not found, using fallback table bounds",
			zap.Int("top", band.Top), zap.Int("bottom", band.Bottom))
	}

	synth := Synthesizer{Params: req.Lines}
	lines := synth.Detect(img, band)
	synth.Draw(img, band, lines, layout.ExtendTop, layout.ExtendBottom)

	crop, err := cropRect(img.Bounds(), band, layout)
	if err != nil {
		return nil, eris.Wrapf(err, "enhance: %s", req.SourcePath)
	}

	if err := writePNG(req.OutputPath, imaging.Crop(img, crop)); err != nil {
		return nil, err
	}

	res := &Result{
		Band:       band,
		Layout:     layout,
		PageIndex:  page,
		Vertical:   len(lines.Vertical),
		Horizontal: len(lines.Horizontal),
		Crop:       crop,
	}
	log.Debug("enhance: wrote table image",
		zap.String("output", req.OutputPath),
		zap.Int("vertical_lines", res.Vertical),
		zap.Int("horizontal_lines", res.Horizontal))
	return res, nil
}

func cropRect(bounds image.Rectangle, band Band, l Layout) (image.Rectangle, error) {
	w, h := bounds.Dx(), bounds.Dy()
	top := max(0, band.Top-l.MarginTop)
	bottom := min(h, band.Bottom+l.MarginBottom)
	left := int(float64(w) * l.LeftRatio)
	right := int(float64(w) * l.RightRatio)
	if bottom <= top || right <= left {
		return image.Rectangle{}, eris.Errorf("empty crop %d..%d x %d..%d on %dx%d page", left, right, top, bottom, w, h)
	}
	return image.Rect(left, top, right, bottom), nil
}

func writePNG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "enhance: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".enhance-*.png")
	if err != nil {
		return eris.Wrap(err, "enhance: create temp file")
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "enhance: encode %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "enhance: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "enhance: rename to %s", path)
	}
	return nil
}
