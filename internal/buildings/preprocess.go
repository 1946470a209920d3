package buildings

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
)

// Options tunes the building stages. Distances are metres.
type Options struct {
	MinArea            float64 // fragments below this merge into a neighbour
	Simplify           float64 // Douglas-Peucker tolerance for compactness; 0 disables
	Buffer             float64 // tessellation limit around the buildings
	MaxCells           int     // tessellation raster budget
	NetworkMaxDistance float64
	TickSpacing        float64
	TickLength         float64
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		MinArea:            30,
		Simplify:           0.5,
		Buffer:             100,
		MaxCells:           4_000_000,
		NetworkMaxDistance: 100,
		TickSpacing:        10,
		TickLength:         50,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MinArea < 0 {
		o.MinArea = d.MinArea
	}
	if o.Simplify < 0 {
		o.Simplify = 0
	}
	if o.Buffer <= 0 {
		o.Buffer = d.Buffer
	}
	if o.MaxCells <= 0 {
		o.MaxCells = d.MaxCells
	}
	if o.NetworkMaxDistance <= 0 {
		o.NetworkMaxDistance = d.NetworkMaxDistance
	}
	if o.TickSpacing <= 0 {
		o.TickSpacing = d.TickSpacing
	}
	if o.TickLength <= 0 {
		o.TickLength = d.TickLength
	}
	return o
}

const preprocessPasses = 2

type part struct {
	poly   orb.Polygon
	name   string
	height float64
	area   float64
	gone   bool
}

// Preprocess projects and cleans footprints: multipolygons are exploded,
// buildings lying inside another footprint are absorbed by it, and
// fragments smaller than MinArea merge into the neighbour sharing the
// longest wall or are dropped. The result has UIDs 0..n-1 in input order.
func Preprocess(fps []Footprint, proj *mgeo.Projection, opts Options) []*Building {
	opts = opts.normalized()
	var parts []*part
	for _, fp := range fps {
		for _, poly := range fp.Geometry {
			if len(poly) == 0 || len(poly[0]) < 4 {
				continue
			}
			pp := proj.Polygon(poly)
			for i := range pp {
				pp[i] = mgeo.CloseRing(pp[i])
			}
			a := planar.Area(pp)
			if a <= 0 || math.IsNaN(a) {
				continue
			}
			parts = append(parts, &part{poly: pp, name: fp.Name, height: fp.Height, area: a})
		}
	}

	var islands, merged, dropped int
	for pass := 0; pass < preprocessPasses; pass++ {
		grid := newBoundGrid(50)
		for i, p := range parts {
			if !p.gone {
				grid.insert(i, p.poly.Bound())
			}
		}
		islands += absorbIslands(parts, grid)
		m, d := mergeFragments(parts, grid, opts.MinArea)
		merged += m
		dropped += d
	}

	var out []*Building
	for _, p := range parts {
		if p.gone {
			continue
		}
		out = append(out, &Building{
			UID:       len(out),
			Geometry:  p.poly,
			Name:      p.name,
			Height:    p.height,
			NetworkID: -1,
		})
	}
	zap.L().Debug("buildings: preprocessed",
		zap.String("component", "buildings"),
		zap.Int("footprints", len(fps)),
		zap.Int("islands", islands),
		zap.Int("merged", merged),
		zap.Int("dropped", dropped),
		zap.Int("buildings", len(out)),
	)
	return out
}

// absorbIslands removes parts lying wholly inside a larger part. The
// container keeps the taller of the two heights.
func absorbIslands(parts []*part, grid *boundGrid) int {
	var n int
	for i, p := range parts {
		if p.gone {
			continue
		}
		b := p.poly.Bound()
		for _, j := range grid.query(b) {
			q := parts[j]
			if j == i || q.gone || q.area <= p.area || !q.poly.Bound().Contains(b.Min) || !q.poly.Bound().Contains(b.Max) {
				continue
			}
			if ringInside(p.poly[0], q.poly) {
				q.height = max(q.height, p.height)
				if q.name == "" {
					q.name = p.name
				}
				p.gone = true
				n++
				break
			}
		}
	}
	return n
}

// ringInside reports whether every vertex of r lies in poly or on its
// exterior ring.
func ringInside(r orb.Ring, poly orb.Polygon) bool {
	for _, pt := range r {
		if planar.PolygonContains(poly, pt) {
			continue
		}
		if planar.DistanceFrom(poly[0], pt) < 1e-6 {
			continue
		}
		return false
	}
	return true
}

// mergeFragments dissolves parts under minArea into the neighbour with the
// longest shared wall, smallest fragments first.
func mergeFragments(parts []*part, grid *boundGrid, minArea float64) (merged, dropped int) {
	var small []int
	for i, p := range parts {
		if !p.gone && p.area < minArea {
			small = append(small, i)
		}
	}
	slices.SortStableFunc(small, func(a, b int) int {
		switch {
		case parts[a].area < parts[b].area:
			return -1
		case parts[a].area > parts[b].area:
			return 1
		}
		return 0
	})

	for _, i := range small {
		p := parts[i]
		if p.gone || p.area >= minArea {
			continue
		}
		best, bestLen := -1, 0.0
		for _, j := range grid.query(p.poly.Bound().Pad(1e-3)) {
			if j == i || parts[j].gone {
				continue
			}
			if l := mgeo.SharedLength(parts[j].poly, p.poly); l > bestLen {
				best, bestLen = j, l
			}
		}
		p.gone = true
		if best < 0 {
			dropped++
			continue
		}
		q := parts[best]
		poly, ok := mgeo.Dissolve(q.poly, p.poly)
		if !ok {
			dropped++
			continue
		}
		q.poly = poly
		q.area = planar.Area(poly)
		q.height = max(q.height, p.height)
		grid.insert(best, poly.Bound())
		merged++
	}
	return merged, dropped
}
