package network

import (
	"slices"

	"github.com/paulmach/orb"
)

// isEndpoint reports whether a node must survive simplification: self-loop
// nodes, sources and sinks, nodes that are not a plain pass-through between
// two neighbours, and nodes where two different ways meet.
func isEndpoint(g *Graph, id int64) bool {
	nbrs := g.Neighbors(id)
	if slices.Contains(nbrs, id) {
		return true
	}
	out, in := g.Out(id), g.In(id)
	if len(out) == 0 || len(in) == 0 {
		return true
	}
	d := len(out) + len(in)
	if len(nbrs) != 2 || (d != 2 && d != 4) {
		return true
	}

	ways := make(map[int64]bool)
	for _, e := range append(out, in...) {
		for _, w := range e.WayIDs {
			ways[w] = true
		}
	}
	return len(ways) > 1
}

// Simplify merges chains of interstitial nodes into single edges between
// endpoints. Merged edges keep the full geometry, the summed length and the
// union of way ids.
func Simplify(g *Graph) *Graph {
	endpoints := make(map[int64]bool)
	for _, id := range g.NodeIDs() {
		if isEndpoint(g, id) {
			endpoints[id] = true
		}
	}

	edgeIndex := make(map[*Edge]int, g.NumEdges())
	for i, e := range g.Edges() {
		edgeIndex[e] = i
	}
	used := make([]bool, g.NumEdges())

	type path struct{ edges []*Edge }
	var paths []path

	walk := func(first *Edge) path {
		p := path{edges: []*Edge{first}}
		used[edgeIndex[first]] = true
		prev, cur := first.U, first.V
		for !endpoints[cur] {
			var next *Edge
			for _, e := range g.Out(cur) {
				if used[edgeIndex[e]] {
					continue
				}
				if e.V != prev {
					next = e
					break
				}
			}
			if next == nil {
				break
			}
			used[edgeIndex[next]] = true
			p.edges = append(p.edges, next)
			prev, cur = cur, next.V
		}
		return p
	}

	for _, id := range g.NodeIDs() {
		if !endpoints[id] {
			continue
		}
		for _, e := range g.Out(id) {
			if !used[edgeIndex[e]] {
				paths = append(paths, walk(e))
			}
		}
	}

	// Rings made only of interstitial nodes have no endpoint to start from;
	// promote one node per ring and walk it in every direction.
	for i, e := range g.Edges() {
		if used[i] {
			continue
		}
		endpoints[e.U] = true
		for _, oe := range g.Out(e.U) {
			if !used[edgeIndex[oe]] {
				paths = append(paths, walk(oe))
			}
		}
	}

	out := NewGraph()
	for _, id := range g.NodeIDs() {
		if endpoints[id] {
			n, _ := g.Node(id)
			out.AddNode(id, n.Point)
		}
	}
	for _, p := range paths {
		first, last := p.edges[0], p.edges[len(p.edges)-1]
		if !endpoints[last.V] {
			continue
		}
		out.AddEdge(first.U, last.V, mergeAttrs(p.edges))
	}
	return out
}

func mergeAttrs(edges []*Edge) EdgeAttrs {
	first := edges[0]
	attrs := first.attrs()
	attrs.WayIDs = nil
	attrs.Length = 0

	line := orb.LineString{}
	seen := make(map[int64]bool)
	for i, e := range edges {
		attrs.Length += e.Length
		pts := e.Geometry
		if i > 0 && len(pts) > 0 {
			pts = pts[1:]
		}
		line = append(line, pts...)
		for _, w := range e.WayIDs {
			if !seen[w] {
				seen[w] = true
				attrs.WayIDs = append(attrs.WayIDs, w)
			}
		}
		if e.Lanes > attrs.Lanes {
			attrs.Lanes = e.Lanes
		}
		if attrs.Name == "" {
			attrs.Name = e.Name
		}
	}
	attrs.Geometry = line
	return attrs
}
