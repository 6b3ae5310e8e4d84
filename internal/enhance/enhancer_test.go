package enhance

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/sitrep-cli/internal/raster"
)

func testColor() ColorParams {
	p := DefaultColorParams()
	p.RowThreshold = 100 * 255
	return p
}

func testLines() LineParams {
	return LineParams{
		Vertical:   HoughParams{Threshold: 50, MinLineLength: 40, MaxLineGap: 5},
		Horizontal: HoughParams{Threshold: 150, MinLineLength: 100, MaxLineGap: 3},
		Tolerance:  5,
		Block:      11,
		C:          3,
	}
}

func testLayouts() *Layouts {
	return &Layouts{Default: Layout{
		MarginTop:    50,
		MarginBottom: 20,
		LeftRatio:    0,
		RightRatio:   1,
		ExtendTop:    40,
		ExtendBottom: 10,
	}}
}

func tablePage() *image.RGBA {
	return page{
		w: 400, h: 300,
		banners: [][2]int{{100, 104}, {200, 204}},
		columns: []int{150, 250}, colFrom: 105, colTo: 199,
	}.render()
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestEnhanceWritesCroppedImage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "PDFs_Lines_23", "Lines_report_page3.png")
	e := New(&fakeRasterizer{page: tablePage()}, testLayouts(), zap.NewNop())

	res, err := e.Enhance(context.Background(), Request{
		SourcePath: "report.pdf", PageIndex: 3, OutputPath: out,
		Year: "23", Week: 10, Color: testColor(), Lines: testLines(), DPI: 600,
	})
	require.NoError(t, err)

	assert.Equal(t, Band{Top: 100, Bottom: 204}, res.Band)
	assert.Equal(t, 3, res.PageIndex)
	assert.GreaterOrEqual(t, res.Vertical, 2)
	assert.Equal(t, image.Rect(0, 50, 400, 224), res.Crop)

	img := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 400, 174), img.Bounds())

	// Column rule is extended above the band: page y=70 is crop y=20.
	r, g, b, _ := img.At(150, 20).RGBA()
	assert.Less(t, r>>8, uint32(160))
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)

	// Away from any rule the page stays white.
	r, _, _, _ = img.At(60, 20).RGBA()
	assert.Equal(t, uint32(255), r>>8)

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestEnhanceIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	e := New(&fakeRasterizer{page: tablePage()}, testLayouts(), zap.NewNop())
	req := Request{SourcePath: "r.pdf", PageIndex: 3, Year: "23", Week: 1, Color: testColor(), Lines: testLines(), DPI: 600}

	req.OutputPath = filepath.Join(dir, "a.png")
	_, err := e.Enhance(context.Background(), req)
	require.NoError(t, err)
	req.OutputPath = filepath.Join(dir, "b.png")
	_, err = e.Enhance(context.Background(), req)
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "b.png"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func TestEnhanceFallbackBoundsWarns(t *testing.T) {
	blank := image.NewRGBA(image.Rect(0, 0, 64, 4600))
	fill(blank, white)

	core, logs := observer.New(zap.WarnLevel)
	layouts := &Layouts{Default: Layout{MarginTop: 100, MarginBottom: 50, RightRatio: 1}}
	e := New(&fakeRasterizer{page: blank}, layouts, zap.New(core))
	out := filepath.Join(t.TempDir(), "out.png")

	res, err := e.Enhance(context.Background(), Request{
		SourcePath: "/data/PDFs_22/odd.pdf", PageIndex: 3, OutputPath: out,
		Year: "22", Week: 4, Color: DefaultColorParams(), Lines: testLines(), DPI: 600,
	})
	require.NoError(t, err)

	assert.Equal(t, Band{Top: 800, Bottom: 4500, FellBack: true}, res.Band)
	assert.Equal(t, image.Rect(0, 700, 64, 4550), res.Crop)
	assert.Equal(t, image.Rect(0, 0, 64, 3850), decodePNG(t, out).Bounds())

	warnings := logs.FilterMessageSnippet("fallback").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "/data/PDFs_22/odd.pdf", warnings[0].ContextMap()["source"])
}

func TestEnhanceRenderFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	e := New(&fakeRasterizer{err: raster.ErrPageOutOfRange}, testLayouts(), zap.NewNop())

	res, err := e.Enhance(context.Background(), Request{SourcePath: "short.pdf", PageIndex: 3, OutputPath: out, DPI: 600})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRender))
	assert.True(t, errors.Is(err, raster.ErrPageOutOfRange))

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnhanceCanceledIsNotRenderFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(&fakeRasterizer{err: context.Canceled}, testLayouts(), zap.NewNop())

	_, err := e.Enhance(ctx, Request{SourcePath: "a.pdf", OutputPath: filepath.Join(t.TempDir(), "o.png")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrRender))
}

func TestEnhanceUsesLayoutPage(t *testing.T) {
	fr := &fakeRasterizer{page: tablePage()}
	e := New(fr, nil, zap.NewNop())

	res, err := e.Enhance(context.Background(), Request{
		SourcePath: "Lassa_20_W23.pdf", PageIndex: 3, OutputPath: filepath.Join(t.TempDir(), "o.png"),
		Year: "20", Week: 23, Color: testColor(), Lines: testLines(), DPI: 600,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, fr.pages)
	assert.Equal(t, 4, res.PageIndex)
	// 2020 layout: crop keeps 7%..59% of the width.
	assert.Equal(t, image.Rect(28, 0, 236, 300), res.Crop)
}

func TestCropRectRejectsEmpty(t *testing.T) {
	_, err := cropRect(image.Rect(0, 0, 100, 100), Band{Top: 10, Bottom: 20}, Layout{LeftRatio: 0.5, RightRatio: 0.5})
	assert.Error(t, err)
}
