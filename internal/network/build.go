package network

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/model"
)

// ErrNetworkUnavailable means no usable street network exists for the area.
var ErrNetworkUnavailable = eris.New("network: no usable street network")

// BuildOptions controls graph construction.
type BuildOptions struct {
	// Simplify removes interstitial nodes so edges run between intersections.
	Simplify bool
	// TruncateByEdge keeps outside nodes adjacent to an inside node.
	TruncateByEdge bool
	// KeepAll keeps every weakly connected component instead of the largest.
	KeepAll bool
}

// DefaultBuildOptions simplifies, truncates by edge and keeps the largest component.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{Simplify: true, TruncateByEdge: true}
}

// Build converts raw OSM elements into the street graph of boundary.
func Build(el *Elements, boundary orb.MultiPolygon, opts BuildOptions) (*Graph, error) {
	if el.Empty() {
		return nil, model.AcquisitionError("network.build", ErrNetworkUnavailable)
	}

	g := FromElements(el)
	if g.NumEdges() == 0 {
		return nil, model.AcquisitionError("network.build", eris.Wrap(ErrNetworkUnavailable, "no drivable ways"))
	}
	if opts.Simplify {
		g = Simplify(g)
	}
	if len(boundary) > 0 {
		g = Truncate(g, boundary, opts.TruncateByEdge)
	}
	if !opts.KeepAll {
		g = g.LargestComponent()
	}

	if g.NumNodes() < 2 || g.NumEdges() == 0 {
		return nil, model.DegenerateError("network.build",
			eris.Wrapf(ErrNetworkUnavailable, "%d nodes and %d edges inside boundary", g.NumNodes(), g.NumEdges()))
	}

	zap.L().Debug("network: graph built",
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
	)
	return g, nil
}

// FromElements creates the unsimplified directed graph of the drivable ways.
// Ways referencing unknown nodes are skipped.
func FromElements(el *Elements) *Graph {
	g := NewGraph()
	if el == nil {
		return g
	}

	var skipped int
	for _, w := range el.Ways {
		if len(w.NodeIDs) < 2 || !Drivable(w.Tags) {
			continue
		}
		complete := true
		for _, id := range w.NodeIDs {
			if _, ok := el.Nodes[id]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			skipped++
			continue
		}

		for _, id := range w.NodeIDs {
			g.AddNode(id, el.Nodes[id])
		}

		dir := onewayDirection(w.Tags)
		attrs := EdgeAttrs{
			WayIDs:  []int64{w.ID},
			Oneway:  dir != 0,
			Highway: w.Tags["highway"],
			Name:    w.Tags["name"],
		}
		if v, ok := parseNumber(w.Tags["lanes"]); ok {
			attrs.Lanes = v
		}
		if v, ok := parseNumber(w.Tags["width"]); ok {
			attrs.Width = v
		}

		for i := 0; i+1 < len(w.NodeIDs); i++ {
			u, v := w.NodeIDs[i], w.NodeIDs[i+1]
			switch dir {
			case 1:
				g.AddEdge(u, v, attrs)
			case -1:
				g.AddEdge(v, u, attrs)
			default:
				g.AddEdge(u, v, attrs)
				g.AddEdge(v, u, attrs)
			}
		}
	}

	if skipped > 0 {
		zap.L().Debug("network: skipped ways with missing nodes", zap.Int("skipped", skipped))
	}
	return g
}

// Truncate keeps the nodes inside boundary. With byEdge, nodes outside the
// boundary survive when one of their neighbours is inside, so streets
// crossing the boundary are kept whole.
func Truncate(g *Graph, boundary orb.MultiPolygon, byEdge bool) *Graph {
	inside := make(map[int64]bool)
	for _, n := range g.Nodes() {
		if planar.MultiPolygonContains(boundary, n.Point) {
			inside[n.ID] = true
		}
	}

	keep := make(map[int64]bool, len(inside))
	for id := range inside {
		keep[id] = true
		if byEdge {
			for _, nb := range g.Neighbors(id) {
				keep[nb] = true
			}
		}
	}
	return g.Subgraph(keep)
}
