package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const snap = 1e-6

type vkey struct{ x, y int64 }

func keyOf(p orb.Point) vkey {
	return vkey{int64(math.Round(p[0] / snap)), int64(math.Round(p[1] / snap))}
}

type segment struct {
	a, b orb.Point
}

// CloseRing returns r with its first point repeated at the end.
func CloseRing(r orb.Ring) orb.Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	return append(r, r[0])
}

// ccwSegments returns the directed segments of r wound counter-clockwise.
func ccwSegments(r orb.Ring) []segment {
	r = CloseRing(r.Clone())
	if r.Orientation() == orb.CW {
		r.Reverse()
	}
	segs := make([]segment, 0, len(r))
	for i := 0; i+1 < len(r); i++ {
		if keyOf(r[i]) == keyOf(r[i+1]) {
			continue
		}
		segs = append(segs, segment{r[i], r[i+1]})
	}
	return segs
}

// SharedLength returns the length of the walls the exterior rings of a and
// b have in common, matched on shared vertices.
func SharedLength(a, b orb.Polygon) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if !a.Bound().Intersects(b.Bound()) {
		return 0
	}
	rev := make(map[[2]vkey]bool)
	for _, s := range ccwSegments(b[0]) {
		rev[[2]vkey{keyOf(s.b), keyOf(s.a)}] = true
	}
	var l float64
	for _, s := range ccwSegments(a[0]) {
		if rev[[2]vkey{keyOf(s.a), keyOf(s.b)}] {
			l += planar.Distance(s.a, s.b)
		}
	}
	return l
}

// Dissolve merges two footprints that share at least one wall by removing
// the common segments and re-linking what remains. Holes of a are kept;
// holes of b are discarded. ok is false when the polygons share no wall or
// the remaining segments do not close into rings.
func Dissolve(a, b orb.Polygon) (orb.Polygon, bool) {
	if len(a) == 0 || len(b) == 0 {
		return nil, false
	}
	sa, sb := ccwSegments(a[0]), ccwSegments(b[0])

	shared := make(map[[2]vkey]bool)
	inB := make(map[[2]vkey]bool, len(sb))
	for _, s := range sb {
		inB[[2]vkey{keyOf(s.a), keyOf(s.b)}] = true
	}
	for _, s := range sa {
		if inB[[2]vkey{keyOf(s.b), keyOf(s.a)}] {
			shared[[2]vkey{keyOf(s.a), keyOf(s.b)}] = true
		}
	}
	if len(shared) == 0 {
		return nil, false
	}

	var rest []segment
	for _, s := range sa {
		if !shared[[2]vkey{keyOf(s.a), keyOf(s.b)}] {
			rest = append(rest, s)
		}
	}
	for _, s := range sb {
		if !shared[[2]vkey{keyOf(s.b), keyOf(s.a)}] {
			rest = append(rest, s)
		}
	}
	if len(rest) < 3 {
		return nil, false
	}

	out := make(map[vkey][]int, len(rest))
	for i, s := range rest {
		k := keyOf(s.a)
		out[k] = append(out[k], i)
	}

	used := make([]bool, len(rest))
	var rings []orb.Ring
	for start := range rest {
		if used[start] {
			continue
		}
		ring := orb.Ring{rest[start].a}
		cur := start
		for {
			used[cur] = true
			ring = append(ring, rest[cur].b)
			end := keyOf(rest[cur].b)
			if end == keyOf(ring[0]) {
				break
			}
			next := -1
			for _, j := range out[end] {
				if !used[j] {
					next = j
					break
				}
			}
			if next < 0 {
				return nil, false
			}
			cur = next
		}
		if len(ring) >= 4 {
			rings = append(rings, ring)
		}
	}
	if len(rings) == 0 {
		return nil, false
	}

	outer := 0
	for i, r := range rings {
		if math.Abs(planar.Area(r)) > math.Abs(planar.Area(rings[outer])) {
			outer = i
		}
	}
	merged := orb.Polygon{rings[outer]}
	for i, r := range rings {
		if i == outer {
			continue
		}
		// Leftover rings inside the outline are courtyards enclosed by the merge.
		if r.Orientation() == orb.CCW {
			r.Reverse()
		}
		merged = append(merged, r)
	}
	merged = append(merged, a[1:]...)
	return merged, true
}
