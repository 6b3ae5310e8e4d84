package enhance

import (
	"image"

	"github.com/fogleman/gg"
)

// lineGray is the neutral colour of synthetic gridlines.
const lineGray = 100

// Lines holds the classified segments found in the table band. Coordinates
// are relative to the band (y=0 is Band.Top).
type Lines struct {
	Vertical   []Segment
	Horizontal []Segment
}

// Synthesizer finds column and row separators in the table band and paints
// them back onto the page.
type Synthesizer struct {
	Params LineParams
}

// Detect thresholds the band of img and runs the vertical and horizontal
// Hough passes. Segments that are neither near-vertical nor near-horizontal
// are dropped.
func (s Synthesizer) Detect(img *image.RGBA, band Band) Lines {
	h := img.Bounds().Dy()
	top := clamp(band.Top, 0, h)
	bottom := clamp(band.Bottom, top, h)
	if bottom == top {
		return Lines{}
	}

	ink := AdaptiveThresholdInv(Grayscale(img, top, bottom), s.Params.Block, s.Params.C)

	var lines Lines
	for _, seg := range HoughLinesP(ink, s.Params.Vertical) {
		if seg.DX() < s.Params.Tolerance {
			lines.Vertical = append(lines.Vertical, seg)
		}
	}
	for _, seg := range HoughLinesP(ink, s.Params.Horizontal) {
		if seg.DY() < s.Params.Tolerance {
			lines.Horizontal = append(lines.Horizontal, seg)
		}
	}
	return lines
}

// Draw paints the lines onto img in gray. Vertical lines run from
// extendTop pixels above the band to extendBottom pixels below it so they
// also separate the header cells; horizontal lines stay where they were found.
func (s Synthesizer) Draw(img *image.RGBA, band Band, lines Lines, extendTop, extendBottom int) {
	dc := gg.NewContextForRGBA(img)
	dc.SetRGB255(lineGray, lineGray, lineGray)
	dc.SetLineCapButt()

	dc.SetLineWidth(2)
	for _, seg := range lines.Vertical {
		dc.DrawLine(
			float64(seg.X1)+0.5, float64(band.Top-extendTop)+0.5,
			float64(seg.X2)+0.5, float64(band.Bottom+extendBottom)+0.5,
		)
		dc.Stroke()
	}

	dc.SetLineWidth(1)
	for _, seg := range lines.Horizontal {
		dc.DrawLine(
			float64(seg.X1)+0.5, float64(seg.Y1+band.Top)+0.5,
			float64(seg.X2)+0.5, float64(seg.Y2+band.Top)+0.5,
		)
		dc.Stroke()
	}
}
