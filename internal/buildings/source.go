package buildings

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/pkg/overpass"
)

// FootprintSource fetches the building footprints touching a boundary.
type FootprintSource interface {
	Footprints(ctx context.Context, boundary orb.MultiPolygon) ([]Footprint, error)
}

// OverpassFootprints reads building ways and multipolygon relations from
// an Overpass instance.
type OverpassFootprints struct {
	Client      overpass.Client
	TimeoutSecs int
}

// NewOverpassFootprints wraps client.
func NewOverpassFootprints(client overpass.Client, timeoutSecs int) *OverpassFootprints {
	if timeoutSecs <= 0 {
		timeoutSecs = 180
	}
	return &OverpassFootprints{Client: client, TimeoutSecs: timeoutSecs}
}

// Footprints returns the polygonal buildings intersecting boundary.
func (s *OverpassFootprints) Footprints(ctx context.Context, boundary orb.MultiPolygon) ([]Footprint, error) {
	if len(boundary) == 0 {
		return nil, model.ConfigurationError("buildings.footprints", eris.New("empty boundary"))
	}
	q := overpass.BBoxQuery(s.TimeoutSecs, boundary.Bound(),
		`way["building"]`,
		`relation["building"]["type"="multipolygon"]`,
	)
	res, err := s.Client.Query(ctx, q)
	if err != nil {
		return nil, model.AcquisitionError("buildings.footprints", eris.Wrap(err, "overpass buildings query"))
	}
	fps := FootprintsFrom(res, boundary)
	if len(fps) == 0 {
		return nil, model.AcquisitionError("buildings.footprints", ErrNoBuildings)
	}
	zap.L().Debug("buildings: footprints acquired",
		zap.String("component", "buildings"),
		zap.Int("ways", len(res.Ways)),
		zap.Int("relations", len(res.Relations)),
		zap.Int("footprints", len(fps)),
	)
	return fps, nil
}

// FootprintsFrom assembles the building polygons of an Overpass result and
// keeps those intersecting boundary. A nil boundary keeps everything.
func FootprintsFrom(res *overpass.Result, boundary orb.MultiPolygon) []Footprint {
	if res == nil {
		return nil
	}
	var out []Footprint
	keep := func(fp Footprint) {
		if len(fp.Geometry) == 0 {
			return
		}
		if boundary != nil && !intersects(fp.Geometry, boundary) {
			return
		}
		out = append(out, fp)
	}

	for _, w := range res.Ways {
		if !isBuilding(w.Tags) {
			continue
		}
		ring, ok := wayRing(res, w.NodeIDs)
		if !ok || !ring.Closed() || len(ring) < 4 {
			continue
		}
		keep(newFootprint(w.ID, orb.MultiPolygon{{ring}}, w.Tags))
	}
	for _, r := range res.Relations {
		if !isBuilding(r.Tags) {
			continue
		}
		keep(newFootprint(r.ID, relationPolygons(res, r), r.Tags))
	}
	return out
}

func isBuilding(tags map[string]string) bool {
	v, ok := tags["building"]
	return ok && v != "no"
}

func newFootprint(id int64, mp orb.MultiPolygon, tags map[string]string) Footprint {
	return Footprint{OSMID: id, Geometry: mp, Name: tags["name"], Height: ParseHeight(tags["height"])}
}

func wayRing(res *overpass.Result, ids []int64) (orb.Ring, bool) {
	if len(ids) == 0 {
		return nil, false
	}
	ring := make(orb.Ring, 0, len(ids))
	for _, id := range ids {
		n, ok := res.Nodes[id]
		if !ok {
			return nil, false
		}
		ring = append(ring, orb.Point{n.Lon, n.Lat})
	}
	return ring, true
}

// relationPolygons joins the member ways of a multipolygon relation into
// closed rings. Each inner ring goes to the first outer ring containing it.
func relationPolygons(res *overpass.Result, r overpass.Relation) orb.MultiPolygon {
	var outer, inner [][]orb.Point
	for _, m := range r.Members {
		if m.Type != "way" {
			continue
		}
		w, ok := res.Way(m.Ref)
		if !ok {
			continue
		}
		line, ok := wayRing(res, w.NodeIDs)
		if !ok || len(line) < 2 {
			continue
		}
		switch m.Role {
		case "inner":
			inner = append(inner, line)
		case "outer", "":
			outer = append(outer, line)
		}
	}

	var mp orb.MultiPolygon
	for _, ring := range joinRings(outer) {
		mp = append(mp, orb.Polygon{ring})
	}
	for _, hole := range joinRings(inner) {
		for i := range mp {
			if planar.RingContains(mp[i][0], hole[0]) {
				mp[i] = append(mp[i], hole)
				break
			}
		}
	}
	return mp
}

// joinRings merges open lines end to end, reversing them as needed, and
// returns the closed rings. Lines that never close are dropped.
func joinRings(lines [][]orb.Point) []orb.Ring {
	used := make([]bool, len(lines))
	var rings []orb.Ring
	for i := range lines {
		if used[i] {
			continue
		}
		used[i] = true
		cur := append([]orb.Point(nil), lines[i]...)
		for !orb.Ring(cur).Closed() {
			end := cur[len(cur)-1]
			grown := false
			for j := range lines {
				if used[j] {
					continue
				}
				l := lines[j]
				switch {
				case l[0].Equal(end):
					cur = append(cur, l[1:]...)
				case l[len(l)-1].Equal(end):
					for k := len(l) - 2; k >= 0; k-- {
						cur = append(cur, l[k])
					}
				default:
					continue
				}
				used[j], grown = true, true
				break
			}
			if !grown {
				break
			}
		}
		if r := orb.Ring(cur); r.Closed() && len(r) >= 4 {
			rings = append(rings, r)
		}
	}
	return rings
}

// intersects is a vertex-containment test: true when a vertex of one
// geometry lies inside the other.
func intersects(fp, boundary orb.MultiPolygon) bool {
	if !fp.Bound().Intersects(boundary.Bound()) {
		return false
	}
	for _, poly := range fp {
		for _, p := range poly[0] {
			if planar.MultiPolygonContains(boundary, p) {
				return true
			}
		}
	}
	for _, poly := range boundary {
		for _, p := range poly[0] {
			if planar.MultiPolygonContains(fp, p) {
				return true
			}
		}
	}
	return planar.MultiPolygonContains(boundary, mgeo.Centroid(fp))
}
