package boundary

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID of every stored boundary.
const SRID = 4326

// EncodeEWKB converts a boundary to EWKB bytes with SRID 4326.
// Returns nil, nil for an empty geometry.
func EncodeEWKB(mp orb.MultiPolygon) ([]byte, error) {
	if len(mp) == 0 {
		return nil, nil
	}
	coords := make([][][]geom.Coord, 0, len(mp))
	for _, poly := range mp {
		rings := make([][]geom.Coord, 0, len(poly))
		for _, ring := range poly {
			cs := make([]geom.Coord, 0, len(ring))
			for _, p := range ring {
				cs = append(cs, geom.Coord{p[0], p[1]})
			}
			rings = append(rings, cs)
		}
		coords = append(coords, rings)
	}
	g, err := geom.NewMultiPolygon(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: build multipolygon")
	}
	data, err := ewkb.Marshal(g.SetSRID(SRID), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB reads a Polygon or MultiPolygon EWKB value.
func DecodeEWKB(data []byte) (orb.MultiPolygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: decode EWKB")
	}
	switch t := g.(type) {
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			mp = append(mp, toPolygon(t.Polygon(i).Coords()))
		}
		return mp, nil
	case *geom.Polygon:
		return orb.MultiPolygon{toPolygon(t.Coords())}, nil
	}
	return nil, eris.Errorf("boundary: unexpected geometry %T", g)
}

func toPolygon(rings [][]geom.Coord) orb.Polygon {
	poly := make(orb.Polygon, 0, len(rings))
	for _, cs := range rings {
		ring := make(orb.Ring, 0, len(cs))
		for _, c := range cs {
			ring = append(ring, orb.Point{c.X(), c.Y()})
		}
		poly = append(poly, ring)
	}
	return poly
}
