package morpho

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/buildings"
	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/network"
)

func square(minLon, minLat, maxLon, maxLat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}}
}

var boundary = square(2.3495, 48.8495, 2.3525, 48.8525)

// unitGrid is a two-way 3×3 street grid whose every edge has length 1.
func unitGrid() *network.Graph {
	g := network.NewGraph()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			g.AddNode(int64(r*3+c), orb.Point{2.35 + float64(c)*0.001, 48.85 + float64(r)*0.001})
		}
	}
	link := func(u, v int64, way int64) {
		g.AddEdge(u, v, network.EdgeAttrs{WayIDs: []int64{way}, Length: 1})
		g.AddEdge(v, u, network.EdgeAttrs{WayIDs: []int64{way}, Length: 1})
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			id := int64(r*3 + c)
			if c < 2 {
				link(id, id+1, int64(100+r))
			}
			if r < 2 {
				link(id, id+3, int64(200+c))
			}
		}
	}
	return g
}

type fakeBuilder struct {
	g   *network.Graph
	err error
}

func (f *fakeBuilder) Build(context.Context, orb.MultiPolygon) (*network.Graph, error) {
	return f.g, f.err
}

type fakeFootprints struct {
	fps   []buildings.Footprint
	err   error
	crash bool
}

func (f *fakeFootprints) Footprints(context.Context, orb.MultiPolygon) ([]buildings.Footprint, error) {
	if f.crash {
		panic("footprint index out of range")
	}
	return f.fps, f.err
}

// rectangle returns a w×h metre footprint placed at (x, y) metres from the
// boundary's projection origin.
func rectangle(x, y, w, h, height float64) buildings.Footprint {
	proj := mgeo.ProjectionFor(boundary)
	poly := orb.Polygon{{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}, {x, y}}}
	return buildings.Footprint{OSMID: 1, Geometry: orb.MultiPolygon{proj.InversePolygon(poly)}, Height: height}
}

type outcome struct {
	stage, outcome string
}

type fakeRecorder struct {
	stages []outcome
	states []State
}

func (r *fakeRecorder) ObserveStage(stage, o string, _ time.Duration) {
	r.stages = append(r.stages, outcome{stage, o})
}

func (r *fakeRecorder) ObservePolygon(s State) {
	r.states = append(r.states, s)
}

func collection(polys ...orb.MultiPolygon) *model.Collection {
	return model.NewCollection("Testville", polys, nil)
}

func TestCompute_MinimalGrid(t *testing.T) {
	rec := &fakeRecorder{}
	e := New(&fakeBuilder{g: unitGrid()},
		&fakeFootprints{fps: []buildings.Footprint{rectangle(10, 10, 20, 10, 0)}},
		WithRecorder(rec))

	tbl, err := e.Compute(context.Background(), collection(boundary), false)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, model.MetricSet(false), tbl.Columns())

	for _, name := range model.MetricSet(false) {
		assert.False(t, math.IsNaN(tbl.Value(0, name)), "%s is missing", name)
	}
	assert.InDelta(t, 1.0, tbl.Value(0, model.MetricAvgStreetLength), 1e-9)
	assert.Greater(t, tbl.Value(0, model.MetricAvgBetweenness), 0.0)
	assert.InDelta(t, 200, tbl.Value(0, model.MetricAvgBuildingArea), 1e-3)
	assert.Less(t, tbl.Value(0, model.MetricAvgBuildingCompactness), 1.0)
	assert.InDelta(t, 200, tbl.Value(0, model.MetricTotalBuiltArea), 1e-3)
	assert.InDelta(t, 12, tbl.Value(0, model.MetricTotalStreetLength), 1e-9)
	// Four equally common bearings out of 36 bins: 1 - (ln 2 / ln 18)².
	assert.InDelta(t, 1-math.Pow(math.Ln2/math.Log(18), 2), tbl.Value(0, model.MetricOrientationOrder), 1e-9)
	assert.Less(t, tbl.Value(0, model.MetricFractalDimension), 0.0)

	assert.Equal(t, []State{StateNetworkBuilt, StateDone}, rec.states)
	for _, s := range rec.stages {
		assert.Equal(t, OutcomeOK, s.outcome, s.stage)
	}
	assert.Empty(t, Coverage(tbl).Missing)
}

func TestCompute_FullGrid(t *testing.T) {
	e := New(&fakeBuilder{g: unitGrid()},
		&fakeFootprints{fps: []buildings.Footprint{rectangle(10, 10, 20, 10, 12)}})

	tbl, err := e.Compute(context.Background(), collection(boundary), true)
	require.NoError(t, err)

	assert.InDelta(t, 1.0/9, tbl.Value(0, model.MetricAvgPageRank), 1e-6)
	assert.Equal(t, 4.0, tbl.Value(0, model.MetricDiameterPeriphery))
	assert.InDelta(t, 48.0/9, tbl.Value(0, model.MetricAvgNodeDegree), 1e-9)
	assert.Greater(t, tbl.Value(0, model.MetricCompactnessArea), 0.7)
	assert.Greater(t, tbl.Value(0, model.MetricAvgTessellationArea), 200.0)
	assert.Equal(t, 12.0, tbl.Value(0, model.MetricAvgBuildingHeight))
	assert.InDelta(t, 2400, tbl.Value(0, model.MetricAvgBuildingVolume), 1e-2)
	assert.False(t, math.IsNaN(tbl.Value(0, model.MetricAvgStreetAlignment)))
	assert.False(t, math.IsNaN(tbl.Value(0, model.MetricAvgNodeConnectivity)))
	assert.False(t, math.IsNaN(tbl.Value(0, model.MetricAvgProfileOpenness)))
}

func TestCompute_NoNetworkLeavesNetworkFieldsMissing(t *testing.T) {
	rec := &fakeRecorder{}
	e := New(
		&fakeBuilder{err: model.AcquisitionError("network.build", network.ErrNetworkUnavailable)},
		&fakeFootprints{err: model.AcquisitionError("buildings.footprints", buildings.ErrNoBuildings)},
		WithRecorder(rec),
	)

	lake := square(2.40, 48.80, 2.41, 48.81)
	tbl, err := e.Compute(context.Background(), collection(lake), true)
	require.NoError(t, err)

	derived := append(model.GroupMetrics(model.GroupSpatial, true),
		model.MetricFractalDimension, model.MetricDiameterPeriphery, model.MetricTotalStreetLength,
		model.MetricAvgStreetAlignment, model.MetricAvgProfileWidth)
	for _, name := range derived {
		assert.True(t, math.IsNaN(tbl.Value(0, name)), "%s should be missing", name)
	}
	assert.Greater(t, tbl.Value(0, model.MetricAreaM2), 0.0)
	assert.Equal(t, tbl.Value(0, model.MetricAreaM2), tbl.Value(0, model.MetricTotalArea))
	assert.False(t, math.IsNaN(tbl.Value(0, model.MetricCompactnessArea)))

	assert.Equal(t, []State{StateNetworkFailed, StateDone}, rec.states)
	assert.Contains(t, rec.stages, outcome{"network", "acquisition_failure"})
	assert.Contains(t, rec.stages, outcome{"spatial", OutcomeSkipped})
	assert.Contains(t, rec.stages, outcome{"built", "acquisition_failure"})
}

func TestCompute_PanicIsContained(t *testing.T) {
	rec := &fakeRecorder{}
	e := New(&fakeBuilder{g: unitGrid()}, &fakeFootprints{crash: true}, WithRecorder(rec))

	tbl, err := e.Compute(context.Background(), collection(boundary, boundary), false)
	require.NoError(t, err)
	for _, id := range []int{0, 1} {
		assert.True(t, math.IsNaN(tbl.Value(id, model.MetricAvgBuildingArea)))
		assert.False(t, math.IsNaN(tbl.Value(id, model.MetricAvgStreetLength)))
		assert.False(t, math.IsNaN(tbl.Value(id, model.MetricTotalArea)))
	}
	assert.Contains(t, rec.stages, outcome{"built", "unexpected_computation_error"})
}

// pointGrid is a street whose two ends share one location, so the
// drawing has no extent.
func pointGrid() *network.Graph {
	g := network.NewGraph()
	g.AddNode(1, orb.Point{2.351, 48.851})
	g.AddNode(2, orb.Point{2.351, 48.851})
	g.AddEdge(1, 2, network.EdgeAttrs{WayIDs: []int64{7}, Length: 1})
	g.AddEdge(2, 1, network.EdgeAttrs{WayIDs: []int64{7}, Length: 1})
	return g
}

func TestCompute_FailedMetricKeepsItsGroup(t *testing.T) {
	rec := &fakeRecorder{}
	e := New(&fakeBuilder{g: pointGrid()}, &fakeFootprints{}, WithRecorder(rec))

	tbl, err := e.Compute(context.Background(), collection(boundary), true)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(tbl.Value(0, model.MetricFractalDimension)))
	assert.False(t, math.IsNaN(tbl.Value(0, model.MetricCompactnessArea)))
	assert.Equal(t, 1.0, tbl.Value(0, model.MetricDiameterPeriphery))
	assert.Contains(t, rec.stages, outcome{"scale", OutcomeOK})
}

func TestMetric_RecoversPanic(t *testing.T) {
	p := &polygon{log: zap.NewNop()}
	v := p.metric("avg_betweenness", func() (float64, error) {
		var xs []float64
		return xs[3], nil
	})
	assert.True(t, math.IsNaN(v))
	assert.Equal(t, 2.5, p.metric("avg_street_length", func() (float64, error) { return 2.5, nil }))

	err := guard("street_profile", func() error { panic("no streets") })
	assert.True(t, model.IsKind(err, model.KindUnexpected))
	assert.Contains(t, err.Error(), "no streets")
}

func TestRunStage_RecoversPanic(t *testing.T) {
	e := New(&fakeBuilder{g: unitGrid()}, &fakeFootprints{})
	p := &polygon{boundary: model.Boundary{Geometry: boundary}, log: zap.NewNop()}
	_, err := e.runStage(context.Background(), p, "built", func(context.Context) (model.Metrics, error) {
		var m map[string]int
		m["boom"]++
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindUnexpected))
	assert.Contains(t, err.Error(), "panic")
}

func TestCompute_NoBuildingsAfterPreprocess(t *testing.T) {
	e := New(&fakeBuilder{g: unitGrid()},
		&fakeFootprints{fps: []buildings.Footprint{rectangle(0, 0, 2, 2, 0)}})
	tbl, err := e.Compute(context.Background(), collection(boundary), false)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(tbl.Value(0, model.MetricAvgBuildingArea)))
	assert.True(t, math.IsNaN(tbl.Value(0, model.MetricTotalBuiltArea)))
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(&fakeBuilder{g: unitGrid()}, &fakeFootprints{})
	tbl, err := e.Compute(ctx, collection(boundary), false)
	require.Error(t, err)
	require.NotNil(t, tbl)
	assert.True(t, math.IsNaN(tbl.Value(0, model.MetricAvgStreetLength)))
	assert.False(t, math.IsNaN(tbl.Value(0, model.MetricAreaM2)))

	_, err = e.Compute(context.Background(), nil, false)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
}
