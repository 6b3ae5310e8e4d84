package enhance

// HSV is a colour in OpenCV's 8-bit HSV space: H in [0,180), S and V in [0,255].
type HSV struct {
	H, S, V uint8
}

// ColorParams selects the banner colour that marks the table band.
type ColorParams struct {
	Lower, Upper HSV
	// RowThreshold is the minimum per-row mask sum (255 per matching pixel)
	// for a row to count as banner.
	RowThreshold   int
	FallbackTop    int
	FallbackBottom int
}

// DefaultColorParams matches the pale green banner of the situation reports
// rendered at 600 DPI.
func DefaultColorParams() ColorParams {
	return ColorParams{
		Lower:          HSV{H: 40, S: 0, V: 210},
		Upper:          HSV{H: 50, S: 30, V: 255},
		RowThreshold:   500000,
		FallbackTop:    800,
		FallbackBottom: 4500,
	}
}

// HoughParams configures one probabilistic Hough pass (rho 1px, theta 1 degree).
type HoughParams struct {
	Threshold     int
	MinLineLength int
	MaxLineGap    int
}

// LineParams configures gridline detection.
type LineParams struct {
	Vertical   HoughParams
	Horizontal HoughParams
	// Tolerance is the largest pixel delta across a segment for it to count
	// as vertical (dx) or horizontal (dy).
	Tolerance int
	// Block and C configure the adaptive mean threshold.
	Block int
	C     int
}

// DefaultLineParams returns the tuning used for 600 DPI renders.
func DefaultLineParams() LineParams {
	return LineParams{
		Vertical:   HoughParams{Threshold: 1400, MinLineLength: 79, MaxLineGap: 50},
		Horizontal: HoughParams{Threshold: 400, MinLineLength: 50, MaxLineGap: 10},
		Tolerance:  5,
		Block:      11,
		C:          3,
	}
}
