package buildings

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

type sample struct {
	pt orb.Point
	id int
}

func (s sample) Point() orb.Point {
	return s.pt
}

// lineIndex finds polylines near a point or box. Every line is sampled at
// most step apart, so any point on a line lies within step/2 of a sample.
type lineIndex struct {
	qt   *quadtree.Quadtree
	step float64
	n    int
}

func newLineIndex(lines map[int][]orb.LineString, step float64) *lineIndex {
	var b orb.Bound
	first := true
	for _, ls := range lines {
		for _, l := range ls {
			for _, p := range l {
				if first {
					b, first = orb.Bound{Min: p, Max: p}, false
					continue
				}
				b = b.Extend(p)
			}
		}
	}
	ix := &lineIndex{qt: quadtree.New(b.Pad(1)), step: step}
	if first {
		return ix
	}

	ids := make([]int, 0, len(lines))
	for id := range lines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		for _, l := range lines[id] {
			for i := 0; i+1 < len(l); i++ {
				a, c := l[i], l[i+1]
				parts := int(math.Ceil(math.Hypot(c[0]-a[0], c[1]-a[1]) / step))
				for k := 0; k < max(parts, 1); k++ {
					t := float64(k) / float64(max(parts, 1))
					ix.add(orb.Point{a[0] + t*(c[0]-a[0]), a[1] + t*(c[1]-a[1])}, id)
				}
			}
			if len(l) > 0 {
				ix.add(l[len(l)-1], id)
			}
		}
	}
	return ix
}

func (ix *lineIndex) add(p orb.Point, id int) {
	if err := ix.qt.Add(sample{pt: p, id: id}); err == nil {
		ix.n++
	}
}

// within returns the ids of lines that may pass through b, sorted.
func (ix *lineIndex) within(b orb.Bound) []int {
	if ix.n == 0 {
		return nil
	}
	found := ix.qt.InBound(nil, b.Pad(ix.step/2))
	seen := make(map[int]bool, len(found))
	var out []int
	for _, f := range found {
		id := f.(sample).id
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// boundGrid buckets ids by the grid cells their bounds cover.
type boundGrid struct {
	cell  float64
	cells map[[2]int][]int
}

func newBoundGrid(cell float64) *boundGrid {
	return &boundGrid{cell: cell, cells: make(map[[2]int][]int)}
}

func (g *boundGrid) span(b orb.Bound) (x0, y0, x1, y1 int) {
	return int(math.Floor(b.Min[0] / g.cell)), int(math.Floor(b.Min[1] / g.cell)),
		int(math.Floor(b.Max[0] / g.cell)), int(math.Floor(b.Max[1] / g.cell))
}

func (g *boundGrid) insert(id int, b orb.Bound) {
	x0, y0, x1, y1 := g.span(b)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			g.cells[[2]int{x, y}] = append(g.cells[[2]int{x, y}], id)
		}
	}
}

// query returns the ids whose cells overlap b, sorted.
func (g *boundGrid) query(b orb.Bound) []int {
	x0, y0, x1, y1 := g.span(b)
	seen := make(map[int]bool)
	var out []int
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for _, id := range g.cells[[2]int{x, y}] {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	slices.Sort(out)
	return out
}

// candidates returns every line that could be the nearest to p within
// maxDist: all lines within step of the nearest sample's distance.
func (ix *lineIndex) candidates(p orb.Point, maxDist float64) []int {
	if ix.n == 0 {
		return nil
	}
	nearest := ix.qt.KNearest(nil, p, 1, maxDist+ix.step/2)
	if len(nearest) == 0 {
		return nil
	}
	s := nearest[0].Point()
	r := math.Hypot(s[0]-p[0], s[1]-p[1]) + ix.step/2
	return ix.within(orb.Bound{Min: orb.Point{p[0] - r, p[1] - r}, Max: orb.Point{p[0] + r, p[1] + r}})
}
