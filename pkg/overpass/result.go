package overpass

import (
	"slices"

	ovp "github.com/serjvanilla/go-overpass"
)

// Node is an OSM node.
type Node struct {
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags,omitempty"`
}

// Way is an OSM way. NodeIDs is empty when the server referenced the way
// without returning its body.
type Way struct {
	ID      int64             `json:"id"`
	NodeIDs []int64           `json:"nodes"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Member is one relation member.
type Member struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// Relation is an OSM relation.
type Relation struct {
	ID      int64             `json:"id"`
	Members []Member          `json:"members"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Result is the decoded answer to a query. Ways and relations are sorted by id.
type Result struct {
	Nodes     map[int64]Node `json:"nodes"`
	Ways      []Way          `json:"ways"`
	Relations []Relation     `json:"relations"`
}

// Empty reports whether the query matched nothing.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Nodes) == 0 && len(r.Ways) == 0 && len(r.Relations) == 0)
}

// Way returns the way with id.
func (r *Result) Way(id int64) (Way, bool) {
	i, ok := slices.BinarySearchFunc(r.Ways, id, func(w Way, id int64) int { return cmpInt(w.ID, id) })
	if !ok {
		return Way{}, false
	}
	return r.Ways[i], true
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func convert(res ovp.Result) *Result {
	out := &Result{
		Nodes:     make(map[int64]Node, len(res.Nodes)),
		Ways:      make([]Way, 0, len(res.Ways)),
		Relations: make([]Relation, 0, len(res.Relations)),
	}
	for id, n := range res.Nodes {
		out.Nodes[id] = Node{ID: id, Lat: n.Lat, Lon: n.Lon, Tags: n.Tags}
	}
	for id, w := range res.Ways {
		way := Way{ID: id, Tags: w.Tags}
		for _, n := range w.Nodes {
			if n != nil {
				way.NodeIDs = append(way.NodeIDs, n.ID)
			}
		}
		out.Ways = append(out.Ways, way)
	}
	for id, r := range res.Relations {
		rel := Relation{ID: id, Tags: r.Tags}
		for _, m := range r.Members {
			mem := Member{Type: string(m.Type), Role: m.Role}
			switch {
			case m.Node != nil:
				mem.Ref = m.Node.ID
			case m.Way != nil:
				mem.Ref = m.Way.ID
			case m.Relation != nil:
				mem.Ref = m.Relation.ID
			}
			rel.Members = append(rel.Members, mem)
		}
		out.Relations = append(out.Relations, rel)
	}
	slices.SortFunc(out.Ways, func(a, b Way) int { return cmpInt(a.ID, b.ID) })
	slices.SortFunc(out.Relations, func(a, b Relation) int { return cmpInt(a.ID, b.ID) })
	return out
}
