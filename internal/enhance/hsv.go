package enhance

import "image"

const hsvShift = 12

var sdiv, hdiv [256]int

func init() {
	for i := 1; i < 256; i++ {
		sdiv[i] = int(float64(255<<hsvShift)/float64(i) + 0.5)
		hdiv[i] = int(float64(180<<hsvShift)/float64(6*i) + 0.5)
	}
}

// ToHSV converts an RGB pixel with OpenCV's fixed-point 8-bit formula, so
// windows tuned against cv2.inRange select the same pixels.
func ToHSV(r, g, b uint8) HSV {
	ri, gi, bi := int(r), int(g), int(b)
	v := max(ri, gi, bi)
	vmin := min(ri, gi, bi)
	diff := v - vmin

	s := (diff*sdiv[v] + (1 << (hsvShift - 1))) >> hsvShift

	var h int
	switch v {
	case ri:
		h = gi - bi
	case gi:
		h = bi - ri + 2*diff
	default:
		h = ri - gi + 4*diff
	}
	h = (h*hdiv[diff] + (1 << (hsvShift - 1))) >> hsvShift
	if h < 0 {
		h += 180
	}
	return HSV{H: uint8(h), S: uint8(s), V: uint8(v)}
}

// In reports whether c lies inside [lo, hi] on every channel.
func (c HSV) In(lo, hi HSV) bool {
	return c.H >= lo.H && c.H <= hi.H &&
		c.S >= lo.S && c.S <= hi.S &&
		c.V >= lo.V && c.V <= hi.V
}

// RowSums returns, for each row of img, 255 times the number of pixels whose
// HSV value falls inside [lo, hi].
func RowSums(img *image.RGBA, lo, hi HSV) []int {
	b := img.Bounds()
	sums := make([]int, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		off := y * img.Stride
		n := 0
		for x := 0; x < b.Dx(); x++ {
			p := img.Pix[off+x*4 : off+x*4+3 : off+x*4+3]
			if ToHSV(p[0], p[1], p[2]).In(lo, hi) {
				n++
			}
		}
		sums[y] = n * 255
	}
	return sums
}
