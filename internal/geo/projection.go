// Package geo holds the planar geometry used by the morphometrics stages:
// a local metric projection, shape descriptors and footprint dissolving.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// Projection maps WGS84 lon/lat to a local plane in metres, centred on an
// origin. It is Web-Mercator rescaled by cos(lat0), which keeps distances
// close to true metres across a city-sized extent.
type Projection struct {
	origin orb.Point
	merc   orb.Point
	k      float64
}

// NewProjection returns a projection centred on origin (lon/lat).
func NewProjection(origin orb.Point) *Projection {
	return &Projection{
		origin: origin,
		merc:   project.WGS84.ToMercator(origin),
		k:      1 / project.MercatorScaleFactor(origin),
	}
}

// ProjectionFor centres a projection on the area centroid of mp.
func ProjectionFor(mp orb.MultiPolygon) *Projection {
	return NewProjection(Centroid(mp))
}

// Origin returns the lon/lat origin.
func (p *Projection) Origin() orb.Point {
	return p.origin
}

// Forward projects a lon/lat point to metres.
func (p *Projection) Forward(pt orb.Point) orb.Point {
	m := project.WGS84.ToMercator(pt)
	return orb.Point{(m[0] - p.merc[0]) * p.k, (m[1] - p.merc[1]) * p.k}
}

// Inverse maps a projected point back to lon/lat.
func (p *Projection) Inverse(pt orb.Point) orb.Point {
	return project.Mercator.ToWGS84(orb.Point{pt[0]/p.k + p.merc[0], pt[1]/p.k + p.merc[1]})
}

// Geometry projects a copy of g; the input is left untouched.
func (p *Projection) Geometry(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), p.Forward)
}

// LineString projects a copy of ls.
func (p *Projection) LineString(ls orb.LineString) orb.LineString {
	return project.LineString(ls.Clone(), p.Forward)
}

// Polygon projects a copy of poly.
func (p *Projection) Polygon(poly orb.Polygon) orb.Polygon {
	return project.Polygon(poly.Clone(), p.Forward)
}

// MultiPolygon projects a copy of mp.
func (p *Projection) MultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	return project.MultiPolygon(mp.Clone(), p.Forward)
}

// InversePolygon unprojects a copy of poly back to lon/lat.
func (p *Projection) InversePolygon(poly orb.Polygon) orb.Polygon {
	return project.Polygon(poly.Clone(), p.Inverse)
}

// Centroid returns the area-weighted centroid of mp in lon/lat.
func Centroid(mp orb.MultiPolygon) orb.Point {
	c, area := planar.CentroidArea(mp)
	if area == 0 || math.IsNaN(c[0]) {
		return mp.Bound().Center()
	}
	return c
}

// GeodesicArea returns the area of mp in square metres.
func GeodesicArea(mp orb.MultiPolygon) float64 {
	return math.Abs(geo.Area(mp))
}

// PadBound grows a lon/lat bound by the given distance in metres.
func PadBound(b orb.Bound, metres float64) orb.Bound {
	return geo.BoundPad(b, metres)
}
