package enhance

import (
	"image"
	"math"
	"math/rand/v2"
)

// Segment is a detected line segment in mask coordinates.
type Segment struct {
	X1, Y1, X2, Y2 int
}

// DX is the absolute horizontal extent of the segment.
func (s Segment) DX() int { return abs(s.X2 - s.X1) }

// DY is the absolute vertical extent of the segment.
func (s Segment) DY() int { return abs(s.Y2 - s.Y1) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

const (
	houghAngles = 180
	houghShift  = 16
)

// houghSeed fixes the point visiting order so repeated runs on the same mask
// return the same segments.
var houghSeed = [2]uint64{0x5eed, 0x11e5}

var houghTrig = func() []float32 {
	t := make([]float32, houghAngles*2)
	theta := math.Pi / houghAngles
	for n := 0; n < houghAngles; n++ {
		t[n*2] = float32(math.Cos(float64(n) * theta))
		t[n*2+1] = float32(math.Sin(float64(n) * theta))
	}
	return t
}()

// HoughLinesP runs the progressive probabilistic Hough transform over the
// non-zero pixels of mask (rho 1px, theta 1 degree). Points are visited in a
// seeded pseudo-random order; each point votes, and once a vote reaches
// p.Threshold the line through it is walked in both directions, tolerating
// gaps up to p.MaxLineGap. Walked pixels are removed from further voting and
// the segment is kept when it spans at least p.MinLineLength on either axis.
func HoughLinesP(mask *image.Gray, p HoughParams) []Segment {
	b := mask.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}
	numrho := (width+height)*2 + 1
	accum := make([]int32, houghAngles*numrho)
	live := make([]bool, width*height)

	var pts []image.Point
	for y := 0; y < height; y++ {
		row := mask.Pix[y*mask.Stride:]
		for x := 0; x < width; x++ {
			if row[x] != 0 {
				live[y*width+x] = true
				pts = append(pts, image.Point{X: x, Y: y})
			}
		}
	}

	vote := func(x, y int, delta int32) (maxVal int32, maxN int) {
		maxVal = int32(p.Threshold - 1)
		for n := 0; n < houghAngles; n++ {
			r := int(math.RoundToEven(float64(float32(x)*houghTrig[n*2] + float32(y)*houghTrig[n*2+1])))
			r += (numrho - 1) / 2
			a := &accum[n*numrho+r]
			*a += delta
			if *a > maxVal {
				maxVal, maxN = *a, n
			}
		}
		return maxVal, maxN
	}

	rng := rand.New(rand.NewPCG(houghSeed[0], houghSeed[1]))
	var out []Segment

	for count := len(pts); count > 0; count-- {
		idx := rng.IntN(count)
		pt := pts[idx]
		pts[idx] = pts[count-1]

		if !live[pt.Y*width+pt.X] {
			continue
		}

		maxVal, maxN := vote(pt.X, pt.Y, 1)
		if maxVal < int32(p.Threshold) {
			continue
		}

		a := -houghTrig[maxN*2+1]
		bb := houghTrig[maxN*2]
		x0, y0 := pt.X, pt.Y
		var dx0, dy0 int
		xflag := math.Abs(float64(a)) > math.Abs(float64(bb))
		if xflag {
			dx0 = 1
			if a <= 0 {
				dx0 = -1
			}
			dy0 = int(math.RoundToEven(float64(bb) * (1 << houghShift) / math.Abs(float64(a))))
			y0 = y0<<houghShift + 1<<(houghShift-1)
		} else {
			dy0 = 1
			if bb <= 0 {
				dy0 = -1
			}
			dx0 = int(math.RoundToEven(float64(a) * (1 << houghShift) / math.Abs(float64(bb))))
			x0 = x0<<houghShift + 1<<(houghShift-1)
		}

		at := func(x, y int) (int, int) {
			if xflag {
				return x, y >> houghShift
			}
			return x >> houghShift, y
		}

		var end [2]image.Point
		for k := 0; k < 2; k++ {
			gap := 0
			dx, dy := dx0, dy0
			if k > 0 {
				dx, dy = -dx, -dy
			}
			for x, y := x0, y0; ; x, y = x+dx, y+dy {
				j, i := at(x, y)
				if j < 0 || j >= width || i < 0 || i >= height {
					break
				}
				if live[i*width+j] {
					gap = 0
					end[k] = image.Point{X: j, Y: i}
				} else if gap++; gap > p.MaxLineGap {
					break
				}
			}
		}

		good := abs(end[1].X-end[0].X) >= p.MinLineLength ||
			abs(end[1].Y-end[0].Y) >= p.MinLineLength

		for k := 0; k < 2; k++ {
			dx, dy := dx0, dy0
			if k > 0 {
				dx, dy = -dx, -dy
			}
			for x, y := x0, y0; ; x, y = x+dx, y+dy {
				j, i := at(x, y)
				if live[i*width+j] {
					if good {
						vote(j, i, -1)
					}
					live[i*width+j] = false
				}
				if i == end[k].Y && j == end[k].X {
					break
				}
			}
		}

		if good {
			out = append(out, Segment{X1: end[0].X, Y1: end[0].Y, X2: end[1].X, Y2: end[1].Y})
		}
	}
	return out
}
