package buildings

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/morpho-cli/internal/network"
)

// StreetProfile summarises the ticks cast across one street. Heights and
// Ratio are NaN when no building carries a height.
type StreetProfile struct {
	Width     float64
	WidthDev  float64
	Openness  float64
	Height    float64
	HeightDev float64
	Ratio     float64
}

// Profile casts ticks every opts.TickSpacing metres along each street,
// perpendicular to it and opts.TickLength long, and measures the distance
// to the first building wall on either side. A side without a building
// counts as half a tick when the other side hits; ticks hitting nothing
// only count towards openness.
func Profile(streets []network.ProjectedStreet, bs []*Building, opts Options) []StreetProfile {
	opts = opts.normalized()
	half := opts.TickLength / 2
	withHeights := HasHeights(bs)

	idx := newBoundGrid(50)
	for i, b := range bs {
		idx.insert(i, b.Geometry.Bound())
	}

	out := make([]StreetProfile, len(streets))
	for si, s := range streets {
		var widths, heights []float64
		var sides, open int
		for _, t := range ticks(s.Line, opts.TickSpacing) {
			n := orb.Point{-t.dir[1], t.dir[0]}
			var w float64
			var hits int
			for _, sign := range [2]float64{1, -1} {
				end := orb.Point{t.at[0] + sign*half*n[0], t.at[1] + sign*half*n[1]}
				sides++
				d, hit := firstWall(t.at, end, bs, idx)
				if hit < 0 {
					open++
					w += half
					continue
				}
				hits++
				w += d
				heights = append(heights, bs[hit].Height)
			}
			if hits > 0 {
				widths = append(widths, w)
			}
		}

		p := StreetProfile{Width: math.NaN(), WidthDev: math.NaN(), Height: math.NaN(), HeightDev: math.NaN(), Ratio: math.NaN()}
		if sides > 0 {
			p.Openness = float64(open) / float64(sides)
		} else {
			p.Openness = math.NaN()
		}
		if len(widths) > 0 {
			p.Width, p.WidthDev = stat.PopMeanStdDev(widths, nil)
		}
		if withHeights && len(heights) > 0 {
			p.Height, p.HeightDev = stat.PopMeanStdDev(heights, nil)
			if p.Width > 0 {
				p.Ratio = p.Height / p.Width
			}
		}
		out[si] = p
	}
	return out
}

type tick struct {
	at  orb.Point
	dir orb.Point // unit direction of the street at the tick
}

// ticks places points every spacing metres along line, starting at its
// first vertex.
func ticks(line orb.LineString, spacing float64) []tick {
	var out []tick
	next := 0.0
	walked := 0.0
	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		l := math.Hypot(b[0]-a[0], b[1]-a[1])
		if l == 0 {
			continue
		}
		dir := orb.Point{(b[0] - a[0]) / l, (b[1] - a[1]) / l}
		for next <= walked+l {
			f := next - walked
			out = append(out, tick{at: orb.Point{a[0] + f*dir[0], a[1] + f*dir[1]}, dir: dir})
			next += spacing
		}
		walked += l
	}
	return out
}

// firstWall returns the distance from a to the nearest building wall
// crossed by the segment a-b and that building's index, or -1.
func firstWall(a, b orb.Point, bs []*Building, idx *boundGrid) (float64, int) {
	seg := orb.Bound{Min: a, Max: a}.Extend(b)
	best, bestT := -1, math.Inf(1)
	for _, i := range idx.query(seg) {
		g := bs[i].Geometry
		if !g.Bound().Intersects(seg) {
			continue
		}
		for _, r := range g {
			for k := 0; k+1 < len(r); k++ {
				if t, ok := crossing(a, b, r[k], r[k+1]); ok && t < bestT {
					best, bestT = i, t
				}
			}
		}
	}
	if best < 0 {
		return 0, -1
	}
	return bestT * math.Hypot(b[0]-a[0], b[1]-a[1]), best
}

// crossing intersects segment p-q with segment r-s and returns the
// parameter along p-q.
func crossing(p, q, r, s orb.Point) (float64, bool) {
	dx, dy := q[0]-p[0], q[1]-p[1]
	ex, ey := s[0]-r[0], s[1]-r[1]
	den := dx*ey - dy*ex
	if den == 0 {
		return 0, false
	}
	fx, fy := r[0]-p[0], r[1]-p[1]
	t := (fx*ey - fy*ex) / den
	u := (fx*dy - fy*dx) / den
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}
