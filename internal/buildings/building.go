// Package buildings turns raw building footprints into per-building
// morphology: areas, shapes, a morphological tessellation, alignment with
// the street network and street profiles.
package buildings

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// ErrNoBuildings means the area has no polygonal building footprints.
var ErrNoBuildings = eris.New("buildings: no building footprints")

// Footprint is a building as acquired, in lon/lat.
type Footprint struct {
	OSMID    int64
	Geometry orb.MultiPolygon
	Name     string
	Height   float64
}

// Building is one preprocessed footprint in projected metres with its
// measures. NetworkID is -1 until a street is assigned.
type Building struct {
	UID      int
	Geometry orb.Polygon
	Name     string
	Height   float64

	Area        float64
	Perimeter   float64
	Compactness float64
	Orientation float64

	CellArea        float64
	CellOrientation float64
	CellAlignment   float64

	NetworkID       int
	StreetAlignment float64
}

// Volume is the footprint area times the height.
func (b *Building) Volume() float64 {
	return b.Area * b.Height
}

// ParseHeight reads an OSM height tag such as "12", "12.5 m" or "10;12"
// leniently. Anything unreadable or negative is 0.
func ParseHeight(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, ";,"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "m"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// HasHeights reports whether any building carries a positive height.
// Missing heights are indistinguishable from zero heights.
func HasHeights(bs []*Building) bool {
	for _, b := range bs {
		if b.Height > 0 {
			return true
		}
	}
	return false
}
