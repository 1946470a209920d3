package buildings

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/network"
	"github.com/sells-group/morpho-cli/pkg/overpass"
)

var origin = orb.Point{2.35, 48.85}

// rect is a closed metre rectangle; extra vertices are spliced in after
// the south-east corner so that walls can share vertices.
func rect(x0, y0, x1, y1 float64, extra ...orb.Point) orb.Polygon {
	r := orb.Ring{{x0, y0}, {x1, y0}}
	r = append(r, extra...)
	r = append(r, orb.Point{x1, y1}, orb.Point{x0, y1}, orb.Point{x0, y0})
	return orb.Polygon{r}
}

func building(uid int, poly orb.Polygon, height float64) *Building {
	return &Building{UID: uid, Geometry: poly, Height: height, NetworkID: -1}
}

func street(line ...orb.Point) network.ProjectedStreet {
	return network.ProjectedStreet{Line: orb.LineString(line)}
}

func TestParseHeight(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12", 12},
		{"12.5 m", 12.5},
		{" 9m", 9},
		{"10;12", 10},
		{"", 0},
		{"tall", 0},
		{"-3", 0},
		{"NaN", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseHeight(tt.in))
		})
	}
}

func squareResult() *overpass.Result {
	nodes := map[int64]overpass.Node{
		1: {ID: 1, Lon: 0, Lat: 0},
		2: {ID: 2, Lon: 0.001, Lat: 0},
		3: {ID: 3, Lon: 0.001, Lat: 0.001},
		4: {ID: 4, Lon: 0, Lat: 0.001},
		5: {ID: 5, Lon: 0.0004, Lat: 0.0004},
		6: {ID: 6, Lon: 0.0006, Lat: 0.0004},
		7: {ID: 7, Lon: 0.0006, Lat: 0.0006},
		8: {ID: 8, Lon: 0.0004, Lat: 0.0006},
		20: {ID: 20, Lon: 0.002, Lat: 0},
		21: {ID: 21, Lon: 0.0021, Lat: 0},
		22: {ID: 22, Lon: 0.0021, Lat: 0.0001},
		30: {ID: 30, Lon: 1, Lat: 1},
		31: {ID: 31, Lon: 1.001, Lat: 1},
		32: {ID: 32, Lon: 1.001, Lat: 1.001},
	}
	return &overpass.Result{
		Nodes: nodes,
		Ways: []overpass.Way{
			{ID: 10, NodeIDs: []int64{1, 2, 3}},
			{ID: 11, NodeIDs: []int64{1, 4, 3}},
			{ID: 12, NodeIDs: []int64{5, 6, 7, 8, 5}},
			{ID: 40, NodeIDs: []int64{20, 21, 22, 20}, Tags: map[string]string{"building": "house", "name": "Shed", "height": "4 m"}},
			{ID: 41, NodeIDs: []int64{20, 21, 22}, Tags: map[string]string{"building": "yes"}},
			{ID: 42, NodeIDs: []int64{20, 21, 22, 20}, Tags: map[string]string{"building": "no"}},
			{ID: 43, NodeIDs: []int64{30, 31, 32, 30}, Tags: map[string]string{"building": "yes"}},
		},
		Relations: []overpass.Relation{{
			ID: 99,
			Members: []overpass.Member{
				{Type: "way", Ref: 10, Role: "outer"},
				{Type: "way", Ref: 11, Role: ""},
				{Type: "way", Ref: 12, Role: "inner"},
				{Type: "node", Ref: 1, Role: "label"},
			},
			Tags: map[string]string{"building": "yes", "type": "multipolygon"},
		}},
	}
}

func TestFootprintsFrom(t *testing.T) {
	boundary := orb.MultiPolygon{{{{-0.01, -0.01}, {0.01, -0.01}, {0.01, 0.01}, {-0.01, 0.01}, {-0.01, -0.01}}}}
	fps := FootprintsFrom(squareResult(), boundary)
	require.Len(t, fps, 2)

	shed := fps[0]
	assert.Equal(t, int64(40), shed.OSMID)
	assert.Equal(t, "Shed", shed.Name)
	assert.Equal(t, 4.0, shed.Height)

	rel := fps[1]
	assert.Equal(t, int64(99), rel.OSMID)
	require.Len(t, rel.Geometry, 1)
	require.Len(t, rel.Geometry[0], 2, "outer ring plus courtyard")
	assert.Len(t, rel.Geometry[0][0], 5)
	assert.True(t, rel.Geometry[0][0].Closed())

	all := FootprintsFrom(squareResult(), nil)
	assert.Len(t, all, 3)
}

func TestJoinRings_DropsOpenLines(t *testing.T) {
	rings := joinRings([][]orb.Point{
		{{0, 0}, {1, 0}},
		{{1, 0}, {1, 1}},
		{{5, 5}, {6, 5}},
	})
	assert.Empty(t, rings)

	rings = joinRings([][]orb.Point{
		{{0, 0}, {1, 0}},
		{{0, 1}, {1, 1}},
		{{1, 0}, {1, 1}},
		{{0, 1}, {0, 0}},
	})
	require.Len(t, rings, 1)
	assert.Len(t, rings[0], 5)
}

type stubClient struct {
	query string
	res   *overpass.Result
	err   error
}

func (s *stubClient) Query(_ context.Context, q string) (*overpass.Result, error) {
	s.query = q
	return s.res, s.err
}

func TestOverpassFootprints(t *testing.T) {
	boundary := orb.MultiPolygon{{{{-0.01, -0.01}, {0.01, -0.01}, {0.01, 0.01}, {-0.01, 0.01}, {-0.01, -0.01}}}}
	c := &stubClient{res: squareResult()}
	src := NewOverpassFootprints(c, 30)

	fps, err := src.Footprints(context.Background(), boundary)
	require.NoError(t, err)
	assert.Len(t, fps, 2)
	assert.Contains(t, c.query, `way["building"]`)
	assert.Contains(t, c.query, `relation["building"]["type"="multipolygon"]`)

	c.res = &overpass.Result{}
	_, err = src.Footprints(context.Background(), boundary)
	assert.ErrorIs(t, err, ErrNoBuildings)
	assert.True(t, model.IsKind(err, model.KindAcquisition))

	c.err = errors.New("timeout")
	_, err = src.Footprints(context.Background(), boundary)
	assert.True(t, model.IsKind(err, model.KindAcquisition))

	_, err = src.Footprints(context.Background(), nil)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
}

func TestPreprocess(t *testing.T) {
	proj := mgeo.NewProjection(origin)
	ll := func(p orb.Polygon) orb.MultiPolygon {
		return orb.MultiPolygon{proj.InversePolygon(p)}
	}
	fps := []Footprint{
		// Main block with a vertex where the fragment's wall ends.
		{OSMID: 1, Geometry: ll(rect(0, 0, 10, 10, orb.Point{10, 4}))},
		// Fragment sharing the wall (10,0)-(10,4).
		{OSMID: 2, Geometry: ll(rect(10, 0, 14, 4)), Height: 3},
		// Detached fragment.
		{OSMID: 3, Geometry: ll(rect(50, 50, 53, 53))},
		// Container and island.
		{OSMID: 4, Geometry: ll(rect(100, 0, 120, 20)), Name: "Hall"},
		{OSMID: 5, Geometry: ll(rect(105, 5, 110, 10)), Height: 12},
		// Two-part multipolygon.
		{OSMID: 6, Geometry: append(ll(rect(200, 0, 210, 10)), ll(rect(220, 0, 230, 10))...)},
	}

	bs := Preprocess(fps, proj, DefaultOptions())
	require.Len(t, bs, 4)
	Measure(bs, Options{Simplify: 0})

	for i, b := range bs {
		assert.Equal(t, i, b.UID)
		assert.Equal(t, -1, b.NetworkID)
	}
	assert.InDelta(t, 116, bs[0].Area, 1e-3, "fragment dissolved into its neighbour")
	assert.Equal(t, 3.0, bs[0].Height)
	assert.InDelta(t, 400, bs[1].Area, 1e-3, "island absorbed")
	assert.Equal(t, 12.0, bs[1].Height)
	assert.Equal(t, "Hall", bs[1].Name)
	assert.InDelta(t, 100, bs[2].Area, 1e-3)
	assert.InDelta(t, 100, bs[3].Area, 1e-3)
}

func TestMeasure(t *testing.T) {
	bs := []*Building{building(0, rect(0, 0, 20, 10), 0)}
	Measure(bs, DefaultOptions())
	b := bs[0]
	assert.InDelta(t, 200, b.Area, 1e-9)
	assert.InDelta(t, 60, b.Perimeter, 1e-9)
	assert.InDelta(t, 4*math.Pi*200/3600, b.Compactness, 1e-9)
	assert.InDelta(t, 0, b.Orientation, 1e-9)

	b.Height = 5
	assert.InDelta(t, 1000, b.Volume(), 1e-9)
	assert.True(t, HasHeights(bs))
}

func TestTessellate_TwoBuildings(t *testing.T) {
	bs := []*Building{
		building(0, rect(0, 0, 10, 10), 0),
		building(1, rect(30, 0, 40, 10), 0),
	}
	Measure(bs, DefaultOptions())
	tess, err := Tessellate(bs, Options{Buffer: 10, MaxCells: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, 1.0, tess.Resolution)
	assert.Equal(t, 60, tess.Width)
	assert.Equal(t, 30, tess.Height)

	for _, b := range bs {
		assert.Greater(t, b.CellArea, b.Area)
		assert.LessOrEqual(t, b.CellArea, 900.0)
		assert.Less(t, b.CellOrientation, 1.0)
		assert.InDelta(t, math.Abs(b.Orientation-b.CellOrientation), b.CellAlignment, 1e-12)
	}
	assert.InDelta(t, bs[0].CellArea, bs[1].CellArea, 1e-9)
	assert.InDelta(t, float64(tess.Assigned), bs[0].CellArea+bs[1].CellArea, 1e-9)
}

func TestTessellate_SeedsTinyFootprints(t *testing.T) {
	bs := []*Building{building(0, rect(0.1, 0.1, 0.3, 0.3), 0)}
	Measure(bs, DefaultOptions())
	_, err := Tessellate(bs, Options{Buffer: 5})
	require.NoError(t, err)
	assert.Greater(t, bs[0].CellArea, 0.0)

	_, err = Tessellate(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoBuildings)
	assert.True(t, model.IsKind(err, model.KindDegenerate))
}

func TestNearest_MatchesBruteForce(t *testing.T) {
	g := newGrid(orb.Bound{Max: orb.Point{17, 11}}, 1000)
	sites := [][2]int{{2, 3}, {15, 9}, {8, 0}, {9, 10}}
	for i, s := range sites {
		g.label[s[1]*g.nx+s[0]] = int32(i)
	}
	owner, d2 := g.nearest()
	for y := 0; y < g.ny; y++ {
		for x := 0; x < g.nx; x++ {
			best := math.Inf(1)
			for _, s := range sites {
				dx, dy := float64(x-s[0]), float64(y-s[1])
				best = math.Min(best, dx*dx+dy*dy)
			}
			i := y*g.nx + x
			assert.Equal(t, best, d2[i], "pixel %d,%d", x, y)
			s := sites[owner[i]]
			dx, dy := float64(x-s[0]), float64(y-s[1])
			assert.Equal(t, best, dx*dx+dy*dy)
		}
	}
}

func TestAssignNetwork(t *testing.T) {
	streets := []network.ProjectedStreet{
		street(orb.Point{-50, 0}, orb.Point{50, 0}),
		street(orb.Point{60, -50}, orb.Point{60, 100}),
	}
	bs := []*Building{
		building(0, rect(0, 10, 10, 20), 0),
		building(1, rect(45, 45, 55, 55), 0),
		building(2, rect(0, 300, 10, 310), 0),
	}
	Measure(bs, DefaultOptions())

	linked := AssignNetwork(bs, streets, DefaultOptions())
	assert.Equal(t, 2, linked)
	assert.Equal(t, 0, bs[0].NetworkID)
	assert.Equal(t, 1, bs[1].NetworkID)
	assert.Equal(t, -1, bs[2].NetworkID)
	assert.InDelta(t, 0, bs[0].StreetAlignment, 1e-9)
	assert.True(t, math.IsNaN(bs[2].StreetAlignment))

	assert.InDelta(t, 0, MeanOf(bs, func(b *Building) float64 { return b.StreetAlignment }), 1e-9)
}

func TestAssignNetwork_NoStreets(t *testing.T) {
	bs := []*Building{building(0, rect(0, 0, 10, 10), 0)}
	assert.Zero(t, AssignNetwork(bs, nil, DefaultOptions()))
	assert.Equal(t, -1, bs[0].NetworkID)
}

func TestStreetOrientation(t *testing.T) {
	assert.InDelta(t, 0, streetOrientation(orb.LineString{{0, 0}, {0, 10}}), 1e-9)
	assert.InDelta(t, 45, streetOrientation(orb.LineString{{0, 0}, {10, 10}}), 1e-9)
	assert.InDelta(t, 30, streetOrientation(orb.LineString{{0, 0}, {5, 10 * math.Sqrt(3) / 2}}), 1e-9)
}

func TestProfile(t *testing.T) {
	streets := []network.ProjectedStreet{
		street(orb.Point{0, 0}, orb.Point{100, 0}),
		street(orb.Point{0, 500}, orb.Point{100, 500}),
	}
	bs := []*Building{
		building(0, rect(0, 5, 100, 15), 10),
		building(1, rect(0, -20, 100, -10), 20),
	}
	ps := Profile(streets, bs, DefaultOptions())
	require.Len(t, ps, 2)

	p := ps[0]
	assert.InDelta(t, 15, p.Width, 1e-9)
	assert.InDelta(t, 0, p.WidthDev, 1e-9)
	assert.InDelta(t, 0, p.Openness, 1e-9)
	assert.InDelta(t, 15, p.Height, 1e-9)
	assert.InDelta(t, 5, p.HeightDev, 1e-9)
	assert.InDelta(t, 1, p.Ratio, 1e-9)

	empty := ps[1]
	assert.True(t, math.IsNaN(empty.Width))
	assert.InDelta(t, 1, empty.Openness, 1e-12)

	mean := MeanProfile(ps)
	assert.InDelta(t, 15, mean.Width, 1e-9)
	assert.InDelta(t, 0.5, mean.Openness, 1e-9)
}

func TestProfile_OneSidedAndNoHeights(t *testing.T) {
	streets := []network.ProjectedStreet{street(orb.Point{0, 0}, orb.Point{100, 0})}
	bs := []*Building{building(0, rect(0, 5, 100, 15), 0)}
	ps := Profile(streets, bs, DefaultOptions())
	require.Len(t, ps, 1)
	assert.InDelta(t, 30, ps[0].Width, 1e-9, "missing side counts half a tick")
	assert.InDelta(t, 0.5, ps[0].Openness, 1e-9)
	assert.True(t, math.IsNaN(ps[0].Height))
	assert.True(t, math.IsNaN(ps[0].Ratio))
}

func TestTicks(t *testing.T) {
	ts := ticks(orb.LineString{{0, 0}, {15, 0}, {15, 15}}, 10)
	require.Len(t, ts, 4)
	assert.Equal(t, orb.Point{0, 0}, ts[0].at)
	assert.Equal(t, orb.Point{10, 0}, ts[1].at)
	assert.Equal(t, orb.Point{15, 5}, ts[2].at)
	assert.Equal(t, orb.Point{0, 1}, ts[2].dir)
}

func TestInfraTotals(t *testing.T) {
	bs := []*Building{building(0, nil, 0), building(1, nil, 0)}
	bs[0].Area, bs[1].Area = 100, 50
	in := InfraTotals(1e6, bs, []network.Street{{Length: 120}, {Length: 80}})
	assert.Equal(t, Infra{TotalArea: 1e6, TotalBuiltArea: 150, TotalStreetLength: 200}, in)

	assert.Equal(t, Infra{TotalArea: 5}, InfraTotals(5, nil, nil))
	assert.True(t, math.IsNaN(MeanOf(nil, func(b *Building) float64 { return b.Area })))
}
