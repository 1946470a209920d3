// Package netstats computes descriptive and centrality statistics of a
// street network. Every statistic is computed on its own so that one
// failure leaves the others intact.
package netstats

import (
	"container/heap"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/network"
)

// ErrEmptyGraph means no connected component is left to measure.
var ErrEmptyGraph = eris.New("netstats: empty graph")

type arc struct {
	to int
	w  float64
}

// Graph is the undirected, length-weighted primal graph of the largest
// connected component, indexed 0..n-1, plus the directed successor lists
// of the same nodes.
type Graph struct {
	ids      []int64
	pos      []orb.Point
	adj      [][]arc
	succ     [][]int
	directed bool
}

// NewGraph prepares the projected network for centrality analysis.
// Parallel streets collapse to the shortest one and self-loops are dropped;
// neither can lie on a shortest path.
func NewGraph(p *network.Projected) (*Graph, error) {
	if p == nil || len(p.NodeIDs) == 0 {
		return nil, model.DegenerateError("netstats.graph", ErrEmptyGraph)
	}

	ug := simple.NewUndirectedGraph()
	for _, id := range p.NodeIDs {
		ug.AddNode(simple.Node(id))
	}
	for _, s := range p.Streets {
		if s.IsLoop() {
			continue
		}
		ug.SetEdge(simple.Edge{F: simple.Node(s.U), T: simple.Node(s.V)})
	}

	comps := topo.ConnectedComponents(ug)
	if len(comps) == 0 {
		return nil, model.DegenerateError("netstats.graph", ErrEmptyGraph)
	}
	largest := slices.MaxFunc(comps, func(a, b []graph.Node) int { return len(a) - len(b) })

	inComp := make(map[int64]bool, len(largest))
	for _, n := range largest {
		inComp[n.ID()] = true
	}
	g := &Graph{}
	index := make(map[int64]int, len(largest))
	for _, id := range p.NodeIDs {
		if !inComp[id] {
			continue
		}
		index[id] = len(g.ids)
		g.ids = append(g.ids, id)
		g.pos = append(g.pos, p.Nodes[id])
	}

	n := len(g.ids)
	g.adj = make([][]arc, n)
	best := make(map[[2]int]float64)
	for _, s := range p.Streets {
		u, okU := index[s.U]
		v, okV := index[s.V]
		if !okU || !okV || u == v {
			continue
		}
		k := [2]int{min(u, v), max(u, v)}
		if w, ok := best[k]; !ok || s.PlanarLength < w {
			best[k] = s.PlanarLength
		}
	}
	keys := make([][2]int, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b [2]int) int {
		if a[0] != b[0] {
			return a[0] - b[0]
		}
		return a[1] - b[1]
	})
	for _, k := range keys {
		w := best[k]
		g.adj[k[0]] = append(g.adj[k[0]], arc{to: k[1], w: w})
		g.adj[k[1]] = append(g.adj[k[1]], arc{to: k[0], w: w})
	}
	return g, nil
}

// SetDirected records the one-way structure of the street graph. Without
// it every street is treated as two-way.
func (g *Graph) SetDirected(dg *network.Graph) {
	index := make(map[int64]int, len(g.ids))
	for i, id := range g.ids {
		index[id] = i
	}
	g.succ = make([][]int, len(g.ids))
	seen := make(map[[2]int]bool)
	for _, e := range dg.Edges() {
		u, okU := index[e.U]
		v, okV := index[e.V]
		if !okU || !okV || u == v || seen[[2]int{u, v}] {
			continue
		}
		seen[[2]int{u, v}] = true
		g.succ[u] = append(g.succ[u], v)
	}
	g.directed = true
}

func (g *Graph) successors(u int) []int {
	if g.directed {
		return g.succ[u]
	}
	out := make([]int, len(g.adj[u]))
	for i, a := range g.adj[u] {
		out[i] = a.to
	}
	return out
}

// Order returns the number of nodes.
func (g *Graph) Order() int {
	return len(g.ids)
}

// IDs returns the node ids of the component.
func (g *Graph) IDs() []int64 {
	return slices.Clone(g.ids)
}

type item struct {
	node int
	dist float64
}

type queue []item

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)        { *q = append(*q, x.(item)) }

func (q *queue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// sssp is one single-source shortest path tree.
type sssp struct {
	dist  []float64
	order []int // settled nodes by non-decreasing distance
	sigma []float64
	preds [][]int
}

// dijkstra runs from src, ignoring nodes farther than cutoff. Path counts
// and predecessor lists are kept for betweenness when track is set.
func (g *Graph) dijkstra(src int, cutoff float64, track bool) sssp {
	n := len(g.ids)
	r := sssp{dist: make([]float64, n)}
	for i := range r.dist {
		r.dist[i] = math.Inf(1)
	}
	if track {
		r.sigma = make([]float64, n)
		r.preds = make([][]int, n)
		r.sigma[src] = 1
	}
	done := make([]bool, n)
	r.dist[src] = 0
	q := &queue{{node: src}}
	for q.Len() > 0 {
		it := heap.Pop(q).(item)
		u := it.node
		if done[u] || it.dist > r.dist[u] {
			continue
		}
		done[u] = true
		r.order = append(r.order, u)
		for _, a := range g.adj[u] {
			d := r.dist[u] + a.w
			if d > cutoff {
				continue
			}
			switch {
			case d < r.dist[a.to]:
				r.dist[a.to] = d
				heap.Push(q, item{node: a.to, dist: d})
				if track {
					r.sigma[a.to] = r.sigma[u]
					r.preds[a.to] = append(r.preds[a.to][:0], u)
				}
			case d == r.dist[a.to] && track && !done[a.to]:
				r.sigma[a.to] += r.sigma[u]
				r.preds[a.to] = append(r.preds[a.to], u)
			}
		}
	}
	return r
}

// hops returns breadth-first hop counts from src, -1 when unreachable.
func (g *Graph) hops(src int) []int {
	d := make([]int, len(g.ids))
	for i := range d {
		d[i] = -1
	}
	d[src] = 0
	q := []int{src}
	for len(q) > 0 {
		u := q[0]
		q = q[1:]
		for _, a := range g.adj[u] {
			if d[a.to] < 0 {
				d[a.to] = d[u] + 1
				q = append(q, a.to)
			}
		}
	}
	return d
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}
