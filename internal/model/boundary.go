package model

import (
	"github.com/paulmach/orb"
)

// Boundary is one administrative polygon in WGS84 lon/lat.
type Boundary struct {
	ID       int              `json:"id"`
	Name     string           `json:"name,omitempty"`
	Geometry orb.MultiPolygon `json:"-"`
}

// Collection is the ordered set of boundaries that make up one city.
type Collection struct {
	City       string     `json:"city"`
	Boundaries []Boundary `json:"boundaries"`
}

// NewCollection assigns positional IDs to the given polygons.
func NewCollection(city string, polys []orb.MultiPolygon, names []string) *Collection {
	c := &Collection{City: city, Boundaries: make([]Boundary, 0, len(polys))}
	for i, p := range polys {
		b := Boundary{ID: i, Geometry: p}
		if i < len(names) {
			b.Name = names[i]
		}
		c.Boundaries = append(c.Boundaries, b)
	}
	return c
}

// IDs returns the boundary identifiers in collection order.
func (c *Collection) IDs() []int {
	ids := make([]int, len(c.Boundaries))
	for i, b := range c.Boundaries {
		ids[i] = b.ID
	}
	return ids
}

// Len returns the number of boundaries.
func (c *Collection) Len() int {
	return len(c.Boundaries)
}
