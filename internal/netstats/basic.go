package netstats

import (
	"math"
	"slices"

	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/sells-group/morpho-cli/internal/model"
	mnet "github.com/sells-group/morpho-cli/internal/network"
)

// Basic holds the descriptive statistics of a street network.
type Basic struct {
	Nodes                 int
	Edges                 int
	AvgNodeDegree         float64
	EdgeLengthTotal       float64
	StreetLengthTotal     float64
	StreetSegments        int
	StreetLengthAvg       float64
	StreetsPerNodeAvg     float64
	StreetsPerNode        map[int]int
	Proportions           map[int]float64
	IntersectionCount     int
	NodeDensityKm         float64
	IntersectionDensityKm float64
	StreetDensityKm       float64
	CircuityAvg           float64
	SelfLoopProportion    float64
}

// AvgProportion is the mean of the streets-per-node class proportions.
func (b Basic) AvgProportion() float64 {
	if len(b.Proportions) == 0 {
		return math.NaN()
	}
	keys := make([]int, 0, len(b.Proportions))
	for k := range b.Proportions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	xs := make([]float64, len(keys))
	for i, k := range keys {
		xs[i] = b.Proportions[k]
	}
	return mean(xs)
}

// StreetsPerNode counts the physical streets meeting at every node of g.
// A self-loop leaves and enters its node, so it counts twice.
func StreetsPerNode(g *mnet.Graph) map[int64]int {
	out := make(map[int64]int, g.NumNodes())
	for _, id := range g.NodeIDs() {
		out[id] = 0
	}
	for _, s := range g.Streets() {
		out[s.U]++
		out[s.V]++
	}
	return out
}

// BasicStats computes the descriptive statistics of g over an area in m².
func BasicStats(g *mnet.Graph, areaM2 float64) (Basic, error) {
	if g == nil || g.NumNodes() == 0 {
		return Basic{}, model.DegenerateError("netstats.basic", ErrEmptyGraph)
	}
	b := Basic{
		Nodes:          g.NumNodes(),
		Edges:          g.NumEdges(),
		StreetsPerNode: make(map[int]int),
		Proportions:    make(map[int]float64),
	}
	b.AvgNodeDegree = 2 * float64(b.Edges) / float64(b.Nodes)

	for _, e := range g.Edges() {
		b.EdgeLengthTotal += e.Length
	}

	streets := g.Streets()
	b.StreetSegments = len(streets)
	var gc float64
	var loops int
	for _, s := range streets {
		b.StreetLengthTotal += s.Length
		if s.IsLoop() {
			loops++
			continue
		}
		u, _ := g.Node(s.U)
		v, _ := g.Node(s.V)
		gc += geo.Distance(u.Point, v.Point)
	}
	if b.StreetSegments > 0 {
		b.StreetLengthAvg = b.StreetLengthTotal / float64(b.StreetSegments)
		b.SelfLoopProportion = float64(loops) / float64(b.StreetSegments)
	}
	if gc > 0 {
		b.CircuityAvg = b.StreetLengthTotal / gc
	} else {
		b.CircuityAvg = math.NaN()
	}

	spn := StreetsPerNode(g)
	var spnSum int
	for _, c := range spn {
		spnSum += c
		b.StreetsPerNode[c]++
		if c > 1 {
			b.IntersectionCount++
		}
	}
	b.StreetsPerNodeAvg = float64(spnSum) / float64(b.Nodes)
	for c, k := range b.StreetsPerNode {
		b.Proportions[c] = float64(k) / float64(b.Nodes)
	}

	if areaM2 > 0 {
		km2 := areaM2 / 1e6
		b.NodeDensityKm = float64(b.Nodes) / km2
		b.IntersectionDensityKm = float64(b.IntersectionCount) / km2
		b.StreetDensityKm = b.StreetLengthTotal / km2
	} else {
		nan := math.NaN()
		b.NodeDensityKm, b.IntersectionDensityKm, b.StreetDensityKm = nan, nan, nan
	}
	return b, nil
}

// PageRank returns the mean PageRank (damping 0.85) of the directed street
// graph. Parallel edges collapse; self-loops are ignored.
func PageRank(g *mnet.Graph) (float64, error) {
	if g == nil || g.NumNodes() == 0 {
		return 0, model.DegenerateError("netstats.pagerank", ErrEmptyGraph)
	}
	dg := simple.NewDirectedGraph()
	for _, id := range g.NodeIDs() {
		dg.AddNode(simple.Node(id))
	}
	for _, e := range g.Edges() {
		if e.IsLoop() || dg.HasEdgeFromTo(e.U, e.V) {
			continue
		}
		dg.SetEdge(simple.Edge{F: simple.Node(e.U), T: simple.Node(e.V)})
	}
	ranks := network.PageRankSparse(dg, 0.85, 1e-8)
	if len(ranks) == 0 {
		return 0, model.UnexpectedError("netstats.pagerank", eris.New("no ranks computed"))
	}
	ids := g.NodeIDs()
	xs := make([]float64, 0, len(ids))
	for _, id := range ids {
		xs = append(xs, ranks[id])
	}
	return mean(xs), nil
}
