package netstats

import (
	"math"
)

// Betweenness returns the mean length-weighted node betweenness, each
// node's share of shortest paths between other pairs normalised by
// (n-1)(n-2). Brandes' accumulation keeps memory linear in the graph size.
func (g *Graph) Betweenness() float64 {
	n := len(g.ids)
	if n <= 2 {
		return 0
	}
	cb := make([]float64, n)
	delta := make([]float64, n)
	for s := 0; s < n; s++ {
		r := g.dijkstra(s, math.Inf(1), true)
		for i := range delta {
			delta[i] = 0
		}
		for i := len(r.order) - 1; i >= 0; i-- {
			w := r.order[i]
			for _, v := range r.preds[w] {
				delta[v] += r.sigma[v] / r.sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}

	// Both directions of every pair were counted, which is what the
	// undirected normalisation expects.
	scale := 1 / float64((n-1)*(n-2))
	for i := range cb {
		cb[i] *= scale
	}
	return mean(cb)
}

// Closeness returns the mean local closeness within radius metres and
// the mean global closeness. A node reaching r nodes (itself included) at
// total distance D scores (r-1)/D; the global score is further scaled by
// (r-1)/(n-1).
func (g *Graph) Closeness(radius float64) (local, global float64) {
	n := len(g.ids)
	if n < 2 {
		return 0, 0
	}
	loc := make([]float64, n)
	glob := make([]float64, n)
	for s := 0; s < n; s++ {
		glob[s] = closeness(g.dijkstra(s, math.Inf(1), false), n)
		loc[s] = closeness(g.dijkstra(s, radius, false), 0)
	}
	return mean(loc), mean(glob)
}

func closeness(r sssp, n int) float64 {
	var total float64
	for _, v := range r.order {
		total += r.dist[v]
	}
	reached := len(r.order)
	if total <= 0 || reached < 2 {
		return 0
	}
	c := float64(reached-1) / total
	if n > 1 {
		c *= float64(reached-1) / float64(n-1)
	}
	return c
}

// WeightedDiameter is the longest shortest-path distance in metres.
func (g *Graph) WeightedDiameter() float64 {
	var d float64
	for s := range g.ids {
		r := g.dijkstra(s, math.Inf(1), false)
		for _, v := range r.order {
			d = math.Max(d, r.dist[v])
		}
	}
	return d
}

// Diameter is the largest number of streets on a shortest route between
// two nodes, ignoring street length.
func (g *Graph) Diameter() int {
	var d int
	for s := range g.ids {
		for _, h := range g.hops(s) {
			d = max(d, h)
		}
	}
	return d
}

// Straightness returns the mean over nodes of the summed ratio of
// straight-line to network distance to every other reachable node,
// divided by n-1.
func (g *Graph) Straightness() float64 {
	n := len(g.ids)
	if n < 2 {
		return 0
	}
	out := make([]float64, n)
	for s := 0; s < n; s++ {
		r := g.dijkstra(s, math.Inf(1), false)
		var sum float64
		for _, v := range r.order {
			if v == s || r.dist[v] <= 0 {
				continue
			}
			euclid := math.Hypot(g.pos[v].X()-g.pos[s].X(), g.pos[v].Y()-g.pos[s].Y())
			sum += euclid / r.dist[v]
		}
		out[s] = sum / float64(n-1)
	}
	return mean(out)
}
