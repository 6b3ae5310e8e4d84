package extract

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// writeTablePNG writes a small PNG and returns its path.
func writeTablePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(3, 3, color.Black)
	path := filepath.Join(t.TempDir(), "Lines_report_page3.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

const edoJSON = `[
 {"States":"Edo","Suspected":"10","Confirmed":"5","Probable":"2","HCW":"1","Deaths":"1"},
 {"States":"Total","Suspected":"10","Confirmed":"5","Probable":"2","HCW":"1","Deaths":"1"}
]`

func edoRows() []model.Row {
	r := model.Row{
		State:     "Edo",
		Suspected: model.Int(10),
		Confirmed: model.Int(5),
		Probable:  model.Int(2),
		HCW:       model.Int(1),
		Deaths:    model.Int(1),
	}
	total := r
	total.State = model.TotalState
	return []model.Row{r, total}
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
