package netstats

import "slices"

// flowNet is the split-node network: node i becomes in=2i and out=2i+1
// joined by a unit arc, and every street u→v becomes out(u)→in(v).
type flowNet struct {
	head []int // first arc per vertex, -1 for none
	next []int
	to   []int
	cap0 []int
	cap  []int
}

func (f *flowNet) add(u, v int) {
	for _, p := range [2][2]int{{u, v}, {v, u}} {
		f.to = append(f.to, p[1])
		f.next = append(f.next, f.head[p[0]])
		f.head[p[0]] = len(f.to) - 1
	}
	f.cap0 = append(f.cap0, 1, 0)
}

func (g *Graph) flowNet() *flowNet {
	n := len(g.ids)
	f := &flowNet{head: make([]int, 2*n)}
	for i := range f.head {
		f.head[i] = -1
	}
	for i := 0; i < n; i++ {
		f.add(2*i, 2*i+1)
	}
	for u := 0; u < n; u++ {
		for _, v := range g.successors(u) {
			f.add(2*u+1, 2*v)
		}
	}
	f.cap = make([]int, len(f.cap0))
	return f
}

// maxFlow runs Edmonds-Karp between two vertices of f with fresh capacities.
func (f *flowNet) maxFlow(s, t int) int {
	copy(f.cap, f.cap0)
	parent := make([]int, len(f.head))
	var flow int
	for {
		for i := range parent {
			parent[i] = -2
		}
		parent[s] = -1
		q := []int{s}
		for len(q) > 0 && parent[t] == -2 {
			u := q[0]
			q = q[1:]
			for a := f.head[u]; a >= 0; a = f.next[a] {
				if f.cap[a] > 0 && parent[f.to[a]] == -2 {
					parent[f.to[a]] = a
					q = append(q, f.to[a])
				}
			}
		}
		if parent[t] == -2 {
			return flow
		}
		// Unit capacities: every augmenting path carries exactly one unit.
		for v := t; v != s; {
			a := parent[v]
			f.cap[a]--
			f.cap[a^1]++
			v = f.to[a^1]
		}
		flow++
	}
}

// LocalConnectivity is the number of internally node-disjoint directed
// paths from node index s to node index t.
func (g *Graph) LocalConnectivity(s, t int) int {
	return g.flowNet().maxFlow(2*s+1, 2*t)
}

// NodeConnectivity is the minimum local node connectivity over all node
// pairs that are not joined by a street, following Even's algorithm: a
// minimum-degree node v bounds the answer, so only pairs (v, w) for w
// outside v's neighbourhood and non-adjacent pairs of v's neighbours need
// a max flow.
func (g *Graph) NodeConnectivity() float64 {
	n := len(g.ids)
	if n < 2 {
		return 0
	}
	succ := make([][]int, n)
	pred := make([][]int, n)
	for u := 0; u < n; u++ {
		succ[u] = g.successors(u)
		for _, v := range succ[u] {
			pred[v] = append(pred[v], u)
		}
	}
	degree := func(u int) int {
		if g.directed {
			return len(succ[u]) + len(pred[u])
		}
		return len(succ[u])
	}

	v := 0
	for u := 1; u < n; u++ {
		if degree(u) < degree(v) {
			v = u
		}
	}
	k := degree(v)

	near := make(map[int]bool)
	var nbrs []int
	for _, u := range append(slices.Clone(succ[v]), pred[v]...) {
		if !near[u] {
			near[u] = true
			nbrs = append(nbrs, u)
		}
	}

	f := g.flowNet()
	local := func(s, t int) {
		if k > 0 {
			k = min(k, f.maxFlow(2*s+1, 2*t))
		}
	}
	for w := 0; w < n && k > 0; w++ {
		if w != v && !near[w] {
			local(v, w)
		}
	}
	for i, x := range nbrs {
		for j, y := range nbrs {
			if i == j || (!g.directed && j < i) || slices.Contains(succ[x], y) {
				continue
			}
			local(x, y)
		}
	}
	return float64(k)
}
