// Package network builds the drivable street graph of a boundary polygon
// and derives the undirected and projected views used by the metrics.
package network

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Node is a street intersection or dead end in lon/lat.
type Node struct {
	ID    int64
	Point orb.Point
}

// Edge is one directed street segment u→v. Parallel edges between the same
// pair of nodes are distinguished by Key.
type Edge struct {
	U, V     int64
	Key      int
	WayIDs   []int64
	Length   float64
	Geometry orb.LineString
	// Bearing is the initial compass bearing u→v in [0, 360); NaN for self-loops.
	Bearing float64
	Oneway  bool
	Highway string
	Name    string
	Lanes   float64
	Width   float64
}

// ReverseBearing is the bearing of the same street travelled v→u.
func (e *Edge) ReverseBearing() float64 {
	if math.IsNaN(e.Bearing) {
		return math.NaN()
	}
	return math.Mod(e.Bearing+180, 360)
}

// IsLoop reports whether the edge starts and ends on the same node.
func (e *Edge) IsLoop() bool {
	return e.U == e.V
}

// EdgeAttrs are the optional attributes of a new edge. A zero Length is
// computed from the geometry; a nil Geometry is the straight segment u→v.
type EdgeAttrs struct {
	WayIDs   []int64
	Length   float64
	Geometry orb.LineString
	Oneway   bool
	Highway  string
	Name     string
	Lanes    float64
	Width    float64
}

// Graph is a directed multigraph of streets.
type Graph struct {
	nodes map[int64]*Node
	order []int64
	edges []*Edge
	out   map[int64][]int
	in    map[int64][]int
	keys  map[[2]int64]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[int64]*Node),
		out:   make(map[int64][]int),
		in:    make(map[int64][]int),
		keys:  make(map[[2]int64]int),
	}
}

// AddNode inserts a node or moves an existing one.
func (g *Graph) AddNode(id int64, pt orb.Point) {
	if n, ok := g.nodes[id]; ok {
		n.Point = pt
		return
	}
	g.nodes[id] = &Node{ID: id, Point: pt}
	g.order = append(g.order, id)
}

// AddEdge inserts a directed edge between two existing nodes and returns it,
// or nil when either endpoint is unknown.
func (g *Graph) AddEdge(u, v int64, attrs EdgeAttrs) *Edge {
	nu, ok := g.nodes[u]
	if !ok {
		return nil
	}
	nv, ok := g.nodes[v]
	if !ok {
		return nil
	}

	line := attrs.Geometry
	if len(line) < 2 {
		line = orb.LineString{nu.Point, nv.Point}
	}
	length := attrs.Length
	if length <= 0 {
		length = geo.Length(line)
	}

	bearing := math.NaN()
	if u != v {
		bearing = Bearing(nu.Point, nv.Point)
	}

	pair := [2]int64{u, v}
	e := &Edge{
		U:        u,
		V:        v,
		Key:      g.keys[pair],
		WayIDs:   slices.Clone(attrs.WayIDs),
		Length:   length,
		Geometry: line,
		Bearing:  bearing,
		Oneway:   attrs.Oneway,
		Highway:  attrs.Highway,
		Name:     attrs.Name,
		Lanes:    attrs.Lanes,
		Width:    attrs.Width,
	}
	g.keys[pair]++

	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[u] = append(g.out[u], idx)
	g.in[v] = append(g.in[v], idx)
	return e
}

// Bearing returns the initial great-circle bearing from a to b in [0, 360).
func Bearing(a, b orb.Point) float64 {
	d := geo.Bearing(a, b)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d -= 360
	}
	return d
}

// Node returns the node with id.
func (g *Graph) Node(id int64) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodeIDs returns node ids in insertion order.
func (g *Graph) NodeIDs() []int64 {
	return slices.Clone(g.order)
}

// Edges returns every directed edge.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// Out returns the edges leaving id.
func (g *Graph) Out(id int64) []*Edge {
	return g.pick(g.out[id])
}

// In returns the edges entering id.
func (g *Graph) In(id int64) []*Edge {
	return g.pick(g.in[id])
}

func (g *Graph) pick(idx []int) []*Edge {
	out := make([]*Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int {
	return len(g.order)
}

// NumEdges returns the directed edge count.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Neighbors returns the distinct predecessors and successors of id.
func (g *Graph) Neighbors(id int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, e := range g.Out(id) {
		if !seen[e.V] {
			seen[e.V] = true
			out = append(out, e.V)
		}
	}
	for _, e := range g.In(id) {
		if !seen[e.U] {
			seen[e.U] = true
			out = append(out, e.U)
		}
	}
	return out
}

// Bound returns the lon/lat bound of all nodes.
func (g *Graph) Bound() orb.Bound {
	if len(g.order) == 0 {
		return orb.Bound{}
	}
	first := g.nodes[g.order[0]].Point
	b := orb.Bound{Min: first, Max: first}
	for _, id := range g.order[1:] {
		b = b.Extend(g.nodes[id].Point)
	}
	return b
}

// Subgraph returns a copy restricted to the kept nodes and the edges
// between them.
func (g *Graph) Subgraph(keep map[int64]bool) *Graph {
	sub := NewGraph()
	for _, id := range g.order {
		if keep[id] {
			sub.AddNode(id, g.nodes[id].Point)
		}
	}
	for _, e := range g.edges {
		if keep[e.U] && keep[e.V] {
			sub.AddEdge(e.U, e.V, e.attrs())
		}
	}
	return sub
}

func (e *Edge) attrs() EdgeAttrs {
	return EdgeAttrs{
		WayIDs:   e.WayIDs,
		Length:   e.Length,
		Geometry: e.Geometry,
		Oneway:   e.Oneway,
		Highway:  e.Highway,
		Name:     e.Name,
		Lanes:    e.Lanes,
		Width:    e.Width,
	}
}

// WeakComponents returns the weakly connected components, largest first.
// Nodes keep their insertion order within a component and ties keep the
// order of their first node.
func (g *Graph) WeakComponents() [][]int64 {
	ug := simple.NewUndirectedGraph()
	for _, id := range g.order {
		ug.AddNode(simple.Node(id))
	}
	for _, e := range g.edges {
		if !e.IsLoop() {
			ug.SetEdge(simple.Edge{F: simple.Node(e.U), T: simple.Node(e.V)})
		}
	}

	comp := make(map[int64]int, len(g.order))
	for i, c := range topo.ConnectedComponents(ug) {
		for _, n := range c {
			comp[n.ID()] = i
		}
	}
	index := make(map[int]int)
	var comps [][]int64
	for _, id := range g.order {
		i, ok := index[comp[id]]
		if !ok {
			i = len(comps)
			index[comp[id]] = i
			comps = append(comps, nil)
		}
		comps[i] = append(comps[i], id)
	}
	slices.SortStableFunc(comps, func(a, b []int64) int { return len(b) - len(a) })
	return comps
}

// LargestComponent returns the subgraph of the largest weakly connected component.
func (g *Graph) LargestComponent() *Graph {
	comps := g.WeakComponents()
	if len(comps) <= 1 {
		return g
	}
	keep := make(map[int64]bool, len(comps[0]))
	for _, id := range comps[0] {
		keep[id] = true
	}
	return g.Subgraph(keep)
}
