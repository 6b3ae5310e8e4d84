package enhance

import "image"

// Band is the vertical pixel range holding the case table. Bottom is the
// last banner row; FellBack is set when no banner row was found and the
// configured defaults were used.
type Band struct {
	Top      int
	Bottom   int
	FellBack bool
}

// Locator finds the table band from the banner colour.
type Locator struct {
	Params ColorParams
}

// Locate returns the first and last rows whose banner mask sum exceeds the
// threshold, or the fallback bounds when none does.
func (l Locator) Locate(img *image.RGBA) Band {
	sums := RowSums(img, l.Params.Lower, l.Params.Upper)

	top, bottom := -1, -1
	for y, s := range sums {
		if s > l.Params.RowThreshold {
			if top < 0 {
				top = y
			}
			bottom = y
		}
	}
	if top < 0 {
		return Band{Top: l.Params.FallbackTop, Bottom: l.Params.FallbackBottom, FellBack: true}
	}
	return Band{Top: top, Bottom: bottom}
}
