package network

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
)

// Street is one physical street segment of the undirected view: the
// reciprocal directed edges of a two-way street collapse into one Street.
type Street struct {
	ID       int
	U, V     int64
	Length   float64
	Geometry orb.LineString
	Bearing  float64
	WayIDs   []int64
	Highway  string
	Name     string
}

// IsLoop reports whether the street starts and ends on the same node.
func (s Street) IsLoop() bool {
	return s.U == s.V
}

type streetKey struct {
	a, b   int64
	ways   string
	length int64
}

func keyFor(e *Edge) streetKey {
	a, b := e.U, e.V
	if a > b {
		a, b = b, a
	}
	ids := slices.Clone(e.WayIDs)
	slices.Sort(ids)
	buf := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(id>>(8*i)))
		}
	}
	return streetKey{a: a, b: b, ways: string(buf), length: int64(math.Round(e.Length * 1000))}
}

// Streets returns the undirected view of g. A directed edge whose reverse
// twin (same endpoints, ways and length) has already been seen is merged
// into the twin's street.
func (g *Graph) Streets() []Street {
	// open holds, per key, the start nodes of streets still waiting for their twin.
	open := make(map[streetKey][]int64)
	var out []Street

	for _, e := range g.Edges() {
		k := keyFor(e)
		if list := open[k]; len(list) > 0 {
			matched := -1
			for i, p := range list {
				if p == e.V {
					matched = i
					break
				}
			}
			if matched >= 0 {
				open[k] = append(list[:matched], list[matched+1:]...)
				continue
			}
		}
		out = append(out, Street{
			ID:       len(out),
			U:        e.U,
			V:        e.V,
			Length:   e.Length,
			Geometry: e.Geometry,
			Bearing:  e.Bearing,
			WayIDs:   e.WayIDs,
			Highway:  e.Highway,
			Name:     e.Name,
		})
		open[k] = append(open[k], e.U)
	}
	return out
}

// ProjectedStreet is a street in local metres.
type ProjectedStreet struct {
	Street
	Line         orb.LineString
	PlanarLength float64
}

// Projected is the undirected graph in a local metric projection.
type Projected struct {
	Projection *mgeo.Projection
	Nodes      map[int64]orb.Point
	NodeIDs    []int64
	Streets    []ProjectedStreet
}

// Project returns the undirected, projected view of g.
func (g *Graph) Project(proj *mgeo.Projection) *Projected {
	p := &Projected{
		Projection: proj,
		Nodes:      make(map[int64]orb.Point, g.NumNodes()),
		NodeIDs:    g.NodeIDs(),
	}
	for _, n := range g.Nodes() {
		p.Nodes[n.ID] = proj.Forward(n.Point)
	}
	for _, s := range g.Streets() {
		line := proj.LineString(s.Geometry)
		p.Streets = append(p.Streets, ProjectedStreet{
			Street:       s,
			Line:         line,
			PlanarLength: planar.Length(line),
		})
	}
	return p
}

// Bound returns the bound of every projected node and street vertex.
func (p *Projected) Bound() orb.Bound {
	var b orb.Bound
	first := true
	add := func(pt orb.Point) {
		if first {
			b = orb.Bound{Min: pt, Max: pt}
			first = false
			return
		}
		b = b.Extend(pt)
	}
	for _, id := range p.NodeIDs {
		add(p.Nodes[id])
	}
	for _, s := range p.Streets {
		for _, pt := range s.Line {
			add(pt)
		}
	}
	return b
}

// TotalLength returns the summed great-circle length of the undirected streets.
func TotalLength(streets []Street) float64 {
	var l float64
	for _, s := range streets {
		l += s.Length
	}
	return l
}

// StreetBearings returns the bearing of every non-loop street.
func StreetBearings(streets []Street) []float64 {
	out := make([]float64, 0, len(streets))
	for _, s := range streets {
		if s.IsLoop() || math.IsNaN(s.Bearing) {
			continue
		}
		out = append(out, s.Bearing)
	}
	return out
}
