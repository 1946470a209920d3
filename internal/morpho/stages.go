package morpho

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/buildings"
	"github.com/sells-group/morpho-cli/internal/fractal"
	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/netstats"
	"github.com/sells-group/morpho-cli/internal/network"
	"github.com/sells-group/morpho-cli/internal/orientation"
)

var errEmptyBoundary = eris.New("morpho: empty boundary")

// guard runs one step of a stage, turning a panic into an unexpected error.
func guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = model.UnexpectedError("morpho."+name, eris.Errorf("panic: %v", r))
		}
	}()
	return fn()
}

// failed logs err against one metric or step and reports whether there
// was one.
func (p *polygon) failed(name string, err error) bool {
	if err == nil {
		return false
	}
	kind := model.KindOf(err)
	log := p.log.With(zap.String("metric", name), zap.String("kind", kind.String()))
	if kind == model.KindDegenerate {
		log.Debug("morpho: metric degenerate", zap.Error(err))
	} else {
		log.Warn("morpho: metric failed", zap.Error(err))
	}
	return true
}

// metric computes a single value. Any failure, a panic included, leaves
// only that value missing.
func (p *polygon) metric(name string, fn func() (float64, error)) float64 {
	var v float64
	err := guard(name, func() (err error) {
		v, err = fn()
		return err
	})
	if p.failed(name, err) {
		return math.NaN()
	}
	return v
}

// centrality computes a metric of the undirected graph.
func (p *polygon) centrality(name string, fn func(*netstats.Graph) float64) float64 {
	return p.metric(name, func() (float64, error) {
		ug, err := p.undirected()
		if err != nil {
			return 0, err
		}
		return fn(ug), nil
	})
}

func (e *Engine) scale(_ context.Context, p *polygon, full bool) (model.Metrics, error) {
	m := model.Metrics{}
	if full && p.proj != nil {
		m[model.MetricCompactnessArea] = p.metric(model.MetricCompactnessArea, func() (float64, error) {
			return mgeo.MultiPolsbyPopper(p.proj.MultiPolygon(p.boundary.Geometry)), nil
		})
	}
	if !p.hasNetwork() {
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	}

	m[model.MetricFractalDimension] = p.metric(model.MetricFractalDimension, func() (float64, error) {
		d, err := fractal.NetworkDimension(p.projected, e.opts.Render)
		return fractal.Metric(d), err
	})
	if full {
		m[model.MetricDiameterPeriphery] = p.centrality(model.MetricDiameterPeriphery, func(ug *netstats.Graph) float64 {
			return float64(ug.Diameter())
		})
	}
	return m, nil
}

func (e *Engine) spatial(_ context.Context, p *polygon, full bool) (model.Metrics, error) {
	if !p.hasNetwork() {
		return nil, nil
	}
	var basic netstats.Basic
	basicErr := guard("basic_stats", func() (err error) {
		basic, err = netstats.BasicStats(p.graph, p.areaM2)
		return err
	})
	stat := func(name string, fn func(netstats.Basic) float64) float64 {
		return p.metric(name, func() (float64, error) {
			if basicErr != nil {
				return 0, basicErr
			}
			return fn(basic), nil
		})
	}

	m := model.Metrics{
		model.MetricOrientationOrder: p.metric(model.MetricOrientationOrder, func() (float64, error) {
			bearings := orientation.Mirror(network.StreetBearings(p.streets))
			return orientation.Order(bearings, e.opts.OrientationBins)
		}),
		model.MetricAvgStreetLength: stat(model.MetricAvgStreetLength, func(b netstats.Basic) float64 { return b.StreetLengthAvg }),
		model.MetricAvgBetweenness:  p.centrality(model.MetricAvgBetweenness, (*netstats.Graph).Betweenness),
	}
	if !full {
		return m, nil
	}

	m[model.MetricAvgStreetsPerNode] = stat(model.MetricAvgStreetsPerNode, func(b netstats.Basic) float64 { return b.StreetsPerNodeAvg })
	m[model.MetricAvgStreetsProportion] = stat(model.MetricAvgStreetsProportion, netstats.Basic.AvgProportion)
	m[model.MetricIntersectionDensity] = stat(model.MetricIntersectionDensity, func(b netstats.Basic) float64 { return b.NodeDensityKm })
	m[model.MetricStreetDensity] = stat(model.MetricStreetDensity, func(b netstats.Basic) float64 { return b.StreetDensityKm })
	m[model.MetricAvgCircuity] = stat(model.MetricAvgCircuity, func(b netstats.Basic) float64 { return b.CircuityAvg })
	m[model.MetricAvgNodeDegree] = stat(model.MetricAvgNodeDegree, func(b netstats.Basic) float64 { return b.AvgNodeDegree })
	m[model.MetricAvgPageRank] = p.metric(model.MetricAvgPageRank, func() (float64, error) {
		return netstats.PageRank(p.graph)
	})
	m[model.MetricAvgNodeConnectivity] = p.centrality(model.MetricAvgNodeConnectivity, (*netstats.Graph).NodeConnectivity)
	m[model.MetricAvgStraightness] = p.centrality(model.MetricAvgStraightness, (*netstats.Graph).Straightness)

	global := math.NaN()
	m[model.MetricAvgLocalCloseness] = p.centrality(model.MetricAvgLocalCloseness, func(ug *netstats.Graph) float64 {
		local, g := ug.Closeness(ug.WeightedDiameter() / 4)
		global = g
		return local
	})
	m[model.MetricAvgGlobalCloseness] = global
	return m, nil
}

func (e *Engine) built(ctx context.Context, p *polygon, full bool) (model.Metrics, error) {
	if e.footprints == nil {
		return nil, model.ConfigurationError("morpho.built", eris.New("no footprint source"))
	}
	if p.proj == nil {
		return nil, model.DegenerateError("morpho.built", errEmptyBoundary)
	}
	fps, err := e.footprints.Footprints(ctx, p.boundary.Geometry)
	if err != nil {
		return nil, err
	}
	opts := e.opts.Buildings
	bs := buildings.Preprocess(fps, p.proj, opts)
	if len(bs) == 0 {
		return nil, model.DegenerateError("morpho.built", buildings.ErrNoBuildings)
	}
	buildings.Measure(bs, opts)
	p.buildings = bs

	mean := func(fn func(*buildings.Building) float64) float64 {
		return buildings.MeanOf(bs, fn)
	}
	m := model.Metrics{
		model.MetricAvgBuildingArea:        mean(func(b *buildings.Building) float64 { return b.Area }),
		model.MetricAvgBuildingCompactness: mean(func(b *buildings.Building) float64 { return b.Compactness }),
	}
	if !full {
		return m, nil
	}

	m[model.MetricAvgBuildingOrientation] = mean(func(b *buildings.Building) float64 { return b.Orientation })
	if buildings.HasHeights(bs) {
		m[model.MetricAvgBuildingHeight] = mean(func(b *buildings.Building) float64 { return b.Height })
		m[model.MetricAvgBuildingVolume] = mean(func(b *buildings.Building) float64 { return b.Volume() })
	}

	const tessellation = "tessellation"
	if !p.failed(tessellation, guard(tessellation, func() error {
		_, err := buildings.Tessellate(bs, opts)
		return err
	})) {
		m[model.MetricAvgTessellationArea] = mean(func(b *buildings.Building) float64 { return b.CellArea })
		m[model.MetricAvgCellOrientation] = mean(func(b *buildings.Building) float64 { return b.CellOrientation })
		m[model.MetricAvgCellAlignment] = mean(func(b *buildings.Building) float64 { return b.CellAlignment })
	}
	if !p.hasNetwork() {
		return m, nil
	}

	m[model.MetricAvgStreetAlignment] = p.metric(model.MetricAvgStreetAlignment, func() (float64, error) {
		linked := buildings.AssignNetwork(bs, p.projected.Streets, opts)
		p.log.Debug("morpho: buildings linked to streets", zap.Int("linked", linked), zap.Int("buildings", len(bs)))
		return mean(func(b *buildings.Building) float64 { return b.StreetAlignment }), nil
	})

	const profile = "street_profile"
	var prof buildings.StreetProfile
	if !p.failed(profile, guard(profile, func() error {
		prof = buildings.MeanProfile(buildings.Profile(p.projected.Streets, bs, opts))
		return nil
	})) {
		m[model.MetricAvgProfileWidth] = prof.Width
		m[model.MetricAvgProfileWidthDev] = prof.WidthDev
		m[model.MetricAvgProfileOpenness] = prof.Openness
		m[model.MetricAvgProfileHeight] = prof.Height
		m[model.MetricAvgProfileHeightDev] = prof.HeightDev
		m[model.MetricAvgProfileRatio] = prof.Ratio
	}
	return m, nil
}

func (e *Engine) infra(_ context.Context, p *polygon, _ bool) (model.Metrics, error) {
	if p.areaM2 <= 0 && !p.hasNetwork() && p.buildings == nil {
		return nil, nil
	}
	in := buildings.InfraTotals(p.areaM2, p.buildings, p.streets)
	m := model.Metrics{model.MetricTotalArea: in.TotalArea}
	if p.buildings != nil {
		m[model.MetricTotalBuiltArea] = in.TotalBuiltArea
	}
	if p.hasNetwork() {
		m[model.MetricTotalStreetLength] = in.TotalStreetLength
	}
	return m, nil
}
