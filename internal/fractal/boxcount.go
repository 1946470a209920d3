package fractal

import (
	"image"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/network"
)

// Threshold is the gray level (0 black, 1 white) below which a pixel is occupied.
const Threshold = 0.8

// ErrDegenerateRaster means fewer than two box sizes saw the network's edge.
var ErrDegenerateRaster = eris.New("fractal: too few box sizes with boundary boxes")

// Count is the number of boundary boxes at one box size.
type Count struct {
	Size  int
	Boxes int
}

// Occupancy thresholds img into a row-major grid.
func Occupancy(img *image.Gray) (grid []bool, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	grid = make([]bool, w*h)
	limit := Threshold * 255
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			grid[y*w+x] = float64(v) < limit
		}
	}
	return grid, w, h
}

// BoxCount counts, for box sizes 2^n down to 2^1, the boxes holding some
// but not all occupied pixels. 2^n is the largest power of two not above
// the smaller image side. Boxes clipped by the image edge are counted too.
func BoxCount(grid []bool, w, h int) []Count {
	p := min(w, h)
	if p < 2 {
		return nil
	}
	n := int(math.Floor(math.Log2(float64(p))))

	// Summed-area table so every box sum is O(1).
	sat := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int
		for x := 0; x < w; x++ {
			if grid[y*w+x] {
				row++
			}
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + row
		}
	}
	sum := func(x0, y0, x1, y1 int) int {
		return sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
	}

	counts := make([]Count, 0, n)
	for e := n; e >= 1; e-- {
		k := 1 << e
		c := Count{Size: k}
		for y := 0; y < h; y += k {
			for x := 0; x < w; x += k {
				s := sum(x, y, min(x+k, w), min(y+k, h))
				if s > 0 && s < k*k {
					c.Boxes++
				}
			}
		}
		counts = append(counts, c)
	}
	return counts
}

// Fit returns the box-counting dimension, the negated slope of the least
// squares line through log(boxes) against log(size). Sizes without
// boundary boxes are left out of the fit.
func Fit(counts []Count) (float64, error) {
	var xs, ys []float64
	for _, c := range counts {
		if c.Boxes == 0 {
			continue
		}
		xs = append(xs, math.Log(float64(c.Size)))
		ys = append(ys, math.Log(float64(c.Boxes)))
	}
	if len(xs) < 2 {
		return 0, model.DegenerateError("fractal.fit", ErrDegenerateRaster)
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return -slope, nil
}

// Dimension returns the box-counting dimension of img.
func Dimension(img *image.Gray) (float64, error) {
	grid, w, h := Occupancy(img)
	return Fit(BoxCount(grid, w, h))
}

// Metric is the exported fractal-dimension value, the negated dimension:
// a network with D = 1.5 reports -1.5.
func Metric(d float64) float64 {
	return -d
}

// NetworkDimension renders p and returns its box-counting dimension.
func NetworkDimension(p *network.Projected, opts RenderOptions) (float64, error) {
	r, err := Render(p, opts)
	if err != nil {
		return 0, err
	}
	return Dimension(r.Image)
}
