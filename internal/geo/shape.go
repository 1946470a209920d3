package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ConvexHull returns the counter-clockwise hull of pts without a closing
// point (Andrew's monotone chain). Collinear points are dropped.
func ConvexHull(pts []orb.Point) []orb.Point {
	if len(pts) < 3 {
		return append([]orb.Point(nil), pts...)
	}
	ps := append([]orb.Point(nil), pts...)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i][0] != ps[j][0] {
			return ps[i][0] < ps[j][0]
		}
		return ps[i][1] < ps[j][1]
	})

	hull := make([]orb.Point, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// Rect is a minimum rotated rectangle.
type Rect struct {
	Corners [4]orb.Point
	// Axis is the unit direction of the first side, of length Width.
	Axis   orb.Point
	Width  float64
	Height float64
}

// Area returns the rectangle area.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// LongAxis returns the unit direction of the longer side.
func (r Rect) LongAxis() orb.Point {
	if r.Width >= r.Height {
		return r.Axis
	}
	return orb.Point{-r.Axis[1], r.Axis[0]}
}

// MinRotatedRect returns the smallest-area rectangle enclosing pts,
// found by testing every hull edge direction. ok is false when the points
// span no area.
func MinRotatedRect(pts []orb.Point) (Rect, bool) {
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		return Rect{}, false
	}

	best := Rect{}
	bestArea := math.Inf(1)
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		dx, dy := b[0]-a[0], b[1]-a[1]
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		u := orb.Point{dx / l, dy / l}
		v := orb.Point{-u[1], u[0]}

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			pu := p[0]*u[0] + p[1]*u[1]
			pv := p[0]*v[0] + p[1]*v[1]
			minU, maxU = math.Min(minU, pu), math.Max(maxU, pu)
			minV, maxV = math.Min(minV, pv), math.Max(maxV, pv)
		}

		area := (maxU - minU) * (maxV - minV)
		if area < bestArea {
			bestArea = area
			at := func(su, sv float64) orb.Point {
				return orb.Point{su*u[0] + sv*v[0], su*u[1] + sv*v[1]}
			}
			best = Rect{
				Corners: [4]orb.Point{at(minU, minV), at(maxU, minV), at(maxU, maxV), at(minU, maxV)},
				Axis:    u,
				Width:   maxU - minU,
				Height:  maxV - minV,
			}
		}
	}
	if math.IsInf(bestArea, 1) || bestArea == 0 {
		return Rect{}, false
	}
	return best, true
}

// Azimuth returns the compass direction of the vector (dx, dy) in (0, 180]:
// 0/180 is north-south, 90 is east-west.
func Azimuth(dx, dy float64) float64 {
	deg := math.Atan2(dx, dy) * 180 / math.Pi
	if deg > 0 {
		return deg
	}
	return deg + 180
}

// FoldOrientation maps any direction in degrees onto 0–45, the deviation
// from the nearest cardinal axis.
func FoldOrientation(deg float64) float64 {
	t := math.Mod(deg, 90)
	if t < 0 {
		t += 90
	}
	if t > 45 {
		t = 90 - t
	}
	return t
}

// Orientation returns the 0–45° orientation of the longest side of the
// minimum rotated rectangle around pts, or NaN for degenerate input.
func Orientation(pts []orb.Point) float64 {
	r, ok := MinRotatedRect(pts)
	if !ok {
		return math.NaN()
	}
	ax := r.LongAxis()
	return FoldOrientation(Azimuth(ax[0], ax[1]))
}

// PolygonOrientation is Orientation over the exterior ring of p.
func PolygonOrientation(p orb.Polygon) float64 {
	if len(p) == 0 {
		return math.NaN()
	}
	return Orientation(p[0])
}

// Perimeter returns the length of every ring of p.
func Perimeter(p orb.Polygon) float64 {
	var l float64
	for _, r := range p {
		l += planar.Length(r)
	}
	return l
}

// PolsbyPopper returns 4π·area/perimeter² of a projected polygon:
// 1 for a circle, towards 0 for elongated or ragged shapes.
func PolsbyPopper(p orb.Polygon) float64 {
	per := Perimeter(p)
	if per == 0 {
		return math.NaN()
	}
	return 4 * math.Pi * planar.Area(p) / (per * per)
}

// MultiPolsbyPopper applies PolsbyPopper to the union of parts of mp.
func MultiPolsbyPopper(mp orb.MultiPolygon) float64 {
	var area, per float64
	for _, p := range mp {
		area += planar.Area(p)
		per += Perimeter(p)
	}
	if per == 0 {
		return math.NaN()
	}
	return 4 * math.Pi * area / (per * per)
}
