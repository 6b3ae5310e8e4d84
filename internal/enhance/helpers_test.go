package enhance

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
)

var (
	white       = color.RGBA{255, 255, 255, 255}
	black       = color.RGBA{0, 0, 0, 255}
	bannerColor = color.RGBA{232, 240, 224, 255}
)

func fill(img *image.RGBA, c color.RGBA) {
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func fillRows(img *image.RGBA, from, to int, c color.RGBA) {
	draw.Draw(img, image.Rect(0, from, img.Bounds().Dx(), to+1), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// page builds a white page with banner rows and one-pixel black column rules.
type page struct {
	w, h     int
	banners  [][2]int
	columns  []int
	colFrom  int
	colTo    int
	rowRules []int
	ruleFrom int
	ruleTo   int
}

func (p page) render() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	fill(img, white)
	for _, b := range p.banners {
		fillRows(img, b[0], b[1], bannerColor)
	}
	for _, x := range p.columns {
		for y := p.colFrom; y <= p.colTo; y++ {
			img.SetRGBA(x, y, black)
		}
	}
	for _, y := range p.rowRules {
		for x := p.ruleFrom; x <= p.ruleTo; x++ {
			img.SetRGBA(x, y, black)
		}
	}
	return img
}

// fakeRasterizer returns a fresh copy of a fixed page and records the calls.
type fakeRasterizer struct {
	mu    sync.Mutex
	page  *image.RGBA
	err   error
	pages []int
}

func (f *fakeRasterizer) Render(_ context.Context, _ string, pageIndex int, _ float64) (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, pageIndex)
	if f.err != nil {
		return nil, f.err
	}
	out := image.NewRGBA(f.page.Bounds())
	copy(out.Pix, f.page.Pix)
	return out, nil
}
