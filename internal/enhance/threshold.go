package enhance

import "image"

// Grayscale converts rows [top, bottom) of img to 8-bit luma with the
// fixed-point BT.601 weights OpenCV uses.
func Grayscale(img *image.RGBA, top, bottom int) *image.Gray {
	w := img.Bounds().Dx()
	out := image.NewGray(image.Rect(0, 0, w, bottom-top))
	for y := top; y < bottom; y++ {
		src := img.Pix[y*img.Stride:]
		dst := out.Pix[(y-top)*out.Stride:]
		for x := 0; x < w; x++ {
			r, g, b := int(src[x*4]), int(src[x*4+1]), int(src[x*4+2])
			dst[x] = uint8((r*4899 + g*9617 + b*1868 + 8192) >> 14)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AdaptiveThresholdInv binarizes src against the mean of each pixel's
// block x block neighbourhood (replicated border). Pixels darker than the
// local mean by at least c become 255 (ink); everything else becomes 0.
func AdaptiveThresholdInv(src *image.Gray, block, c int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	r := block / 2
	area := block * block
	colSum := make([]int, w)
	addRow := func(y, sign int) {
		row := src.Pix[clamp(y, 0, h-1)*src.Stride:]
		for x := 0; x < w; x++ {
			colSum[x] += sign * int(row[x])
		}
	}
	for dy := -r; dy <= r; dy++ {
		addRow(dy, 1)
	}

	for y := 0; y < h; y++ {
		s := 0
		for dx := -r; dx <= r; dx++ {
			s += colSum[clamp(dx, 0, w-1)]
		}
		row := src.Pix[y*src.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			mean := (2*s + area) / (2 * area)
			if int(row[x])-mean <= -c {
				dst[x] = 255
			}
			s += colSum[clamp(x+r+1, 0, w-1)] - colSum[clamp(x-r, 0, w-1)]
		}
		addRow(y-r, -1)
		addRow(y+r+1, 1)
	}
	return out
}
