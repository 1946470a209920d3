// Package orientation measures how ordered a street network's directions
// are, from the Shannon entropy of its bearing histogram.
package orientation

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/morpho-cli/internal/model"
)

// DefaultBins is the number of final histogram bins (10° each).
const DefaultBins = 36

// ErrNoBearings is returned when the histogram is entirely empty.
var ErrNoBearings = eris.New("orientation: no bearings to measure")

// Histogram bins bearings into n final bins centred on multiples of 360/n.
// The bearings are first counted in 2n half-width bins over [0, 360), the
// counts are rotated by one bin and adjacent pairs summed, so the first bin
// covers [360-180/n, 180/n) and straddles north.
func Histogram(bearings []float64, n int) []float64 {
	if n <= 0 {
		n = DefaultBins
	}
	raw := make([]float64, 2*n)
	width := 360 / float64(2*n)
	for _, b := range bearings {
		if math.IsNaN(b) || b < 0 || b > 360 {
			continue
		}
		i := int(b / width)
		if i >= 2*n {
			// 360 belongs to the last bin, as with a closed right edge.
			i = 2*n - 1
		}
		raw[i]++
	}

	rolled := make([]float64, 2*n)
	for i := range raw {
		rolled[(i+1)%(2*n)] = raw[i]
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = rolled[2*i] + rolled[2*i+1]
	}
	return out
}

// Entropy returns -Σ p·ln(p) over the nonzero bins of counts.
func Entropy(counts []float64) (float64, error) {
	var total float64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return math.NaN(), model.DegenerateError("orientation.entropy", ErrNoBearings)
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := c / total
		h -= p * math.Log(p)
	}
	return h, nil
}

// Order returns 1 - ((H0 - ln 2)/(ln n - ln 2))², where H0 is the entropy of
// the n-bin histogram of bearings. Streets along a single axis score 1, a
// regular four-way grid 1-(ln2/ln(n/2))² (about 0.94 for n=36) and evenly
// spread bearings 0.
func Order(bearings []float64, n int) (float64, error) {
	if n < 3 {
		n = DefaultBins
	}
	h0, err := Entropy(Histogram(bearings, n))
	if err != nil {
		return math.NaN(), err
	}
	hmax := math.Log(float64(n))
	hg := math.Log(2)
	x := (h0 - hg) / (hmax - hg)
	return 1 - x*x, nil
}

// Mirror returns every bearing followed by its reverse (bearing+180 mod 360),
// so digitisation direction does not affect the histogram.
func Mirror(bearings []float64) []float64 {
	out := make([]float64, 0, 2*len(bearings))
	for _, b := range bearings {
		if math.IsNaN(b) {
			continue
		}
		out = append(out, b, Reverse(b))
	}
	return out
}

// Reverse returns the opposite compass direction in [0, 360).
func Reverse(b float64) float64 {
	if b < 180 {
		return b + 180
	}
	return b - 180
}
