// Package morpho computes the morphometrics table of a boundary collection.
// Every polygon walks the same sequence of stages; a failing stage leaves
// its metrics missing and never stops the polygons after it.
package morpho

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/buildings"
	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/fractal"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/netstats"
	"github.com/sells-group/morpho-cli/internal/network"
	"github.com/sells-group/morpho-cli/internal/orientation"
)

// State is the progress of one polygon through the stages.
type State string

const (
	StateInit            State = "INIT"
	StateNetworkBuilt    State = "NETWORK_BUILT"
	StateNetworkFailed   State = "NETWORK_FAILED"
	StateScaleComputed   State = "SCALE_COMPUTED"
	StateSpatialComputed State = "SPATIAL_COMPUTED"
	StateBuiltComputed   State = "BUILT_COMPUTED"
	StateInfraComputed   State = "INFRA_COMPUTED"
	StateDone            State = "DONE"
)

// Stage outcomes reported to a Recorder.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
)

// Recorder receives stage and polygon outcomes. Outcomes are OutcomeOK,
// OutcomeSkipped or an error kind name.
type Recorder interface {
	ObserveStage(stage, outcome string, d time.Duration)
	ObservePolygon(state State)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, string, time.Duration) {}
func (nopRecorder) ObservePolygon(State)                       {}

// Options tunes the stages.
type Options struct {
	Render          fractal.RenderOptions
	Buildings       buildings.Options
	OrientationBins int
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		Render:          fractal.DefaultRenderOptions(),
		Buildings:       buildings.DefaultOptions(),
		OrientationBins: orientation.DefaultBins,
	}
}

// Engine runs the per-polygon pipeline.
type Engine struct {
	network    network.Builder
	footprints buildings.FootprintSource
	opts       Options
	rec        Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions replaces the stage options.
func WithOptions(o Options) Option {
	return func(e *Engine) { e.opts = o }
}

// WithRecorder reports stage outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// New creates an Engine over a street network builder and a footprint source.
func New(nb network.Builder, fs buildings.FootprintSource, opts ...Option) *Engine {
	e := &Engine{network: nb, footprints: fs, opts: DefaultOptions(), rec: nopRecorder{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// polygon carries what the stages of one boundary share.
type polygon struct {
	boundary model.Boundary
	log      *zap.Logger
	state    State
	areaM2   float64
	proj     *mgeo.Projection

	graph     *network.Graph
	projected *network.Projected
	streets   []network.Street
	ug        *netstats.Graph
	ugErr     error

	buildings []*buildings.Building
}

func (p *polygon) move(s State) {
	p.log.Debug("morpho: state", zap.String("from", string(p.state)), zap.String("state", string(s)))
	p.state = s
}

func (p *polygon) hasNetwork() bool {
	return p.graph != nil
}

// undirected builds the centrality graph once per polygon.
func (p *polygon) undirected() (*netstats.Graph, error) {
	if p.ug == nil && p.ugErr == nil {
		p.ug, p.ugErr = netstats.NewGraph(p.projected)
		if p.ugErr == nil {
			p.ug.SetDirected(p.graph)
		}
	}
	return p.ug, p.ugErr
}

// Compute returns the metric table of c. Only the minimal metric set is
// computed unless full. Per-polygon failures stay inside the table as
// missing values; the error is non-nil only for an invalid collection or
// a cancelled context, in which case the rows processed so far are kept.
func (e *Engine) Compute(ctx context.Context, c *model.Collection, full bool) (*model.MetricTable, error) {
	if c == nil {
		return nil, model.ConfigurationError("morpho.compute", eris.New("nil collection"))
	}
	log := zap.L().With(zap.String("component", "morpho"), zap.String("city", c.City))
	t := model.NewMetricTable(c.City, c.IDs(), model.MetricSet(full)...)

	polys := make([]*polygon, 0, c.Len())
	for _, b := range c.Boundaries {
		t.SetName(b.ID, b.Name)
		p := &polygon{
			boundary: b,
			log:      log.With(zap.Int("polygon_id", b.ID)),
			state:    StateInit,
		}
		if len(b.Geometry) > 0 {
			p.areaM2 = mgeo.GeodesicArea(b.Geometry)
			p.proj = mgeo.ProjectionFor(b.Geometry)
			centre := mgeo.Centroid(b.Geometry)
			t.Merge(b.ID, model.Metrics{
				model.MetricAreaM2: p.areaM2,
				model.MetricLon:    centre[0],
				model.MetricLat:    centre[1],
			})
		}
		polys = append(polys, p)
	}

	log.Info("morpho: computing", zap.Int("polygons", len(polys)), zap.Bool("full", full))
	start := time.Now()
	for i, p := range polys {
		if err := ctx.Err(); err != nil {
			log.Warn("morpho: cancelled", zap.Int("done", i), zap.Error(err))
			return t, eris.Wrap(err, "morpho: compute")
		}
		e.computePolygon(ctx, t, p, full)
	}

	cov := Coverage(t)
	log.Info("morpho: computed",
		zap.Int("polygons", len(polys)),
		zap.Int("available", len(cov.Available)),
		zap.Int("missing", len(cov.Missing)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return t, nil
}

func (e *Engine) computePolygon(ctx context.Context, t *model.MetricTable, p *polygon, full bool) {
	p.log.Info("morpho: polygon started", zap.String("name", p.boundary.Name))

	e.buildNetwork(ctx, p)

	steps := []struct {
		group model.Group
		next  State
		run   func(context.Context, *polygon, bool) (model.Metrics, error)
	}{
		{model.GroupScale, StateScaleComputed, e.scale},
		{model.GroupSpatial, StateSpatialComputed, e.spatial},
		{model.GroupBuilt, StateBuiltComputed, e.built},
		{model.GroupInfra, StateInfraComputed, e.infra},
	}
	for _, s := range steps {
		m, err := e.runStage(ctx, p, string(s.group), func(ctx context.Context) (model.Metrics, error) {
			return s.run(ctx, p, full)
		})
		if err == nil {
			t.Merge(p.boundary.ID, m)
		}
		p.move(s.next)
	}

	p.move(StateDone)
	e.rec.ObservePolygon(StateDone)
	p.log.Info("morpho: polygon done")
}

func (e *Engine) buildNetwork(ctx context.Context, p *polygon) {
	_, err := e.runStage(ctx, p, "network", func(ctx context.Context) (model.Metrics, error) {
		if e.network == nil {
			return nil, model.ConfigurationError("morpho.network", eris.New("no network builder"))
		}
		g, err := e.network.Build(ctx, p.boundary.Geometry)
		if err != nil {
			return nil, err
		}
		p.graph = g
		p.projected = g.Project(p.proj)
		p.streets = g.Streets()
		return nil, nil
	})
	if err != nil {
		p.graph, p.projected, p.streets = nil, nil, nil
		p.move(StateNetworkFailed)
		e.rec.ObservePolygon(StateNetworkFailed)
		return
	}
	p.move(StateNetworkBuilt)
	e.rec.ObservePolygon(StateNetworkBuilt)
}

// runStage runs one stage, turning a panic into an unexpected error, and
// logs and records the outcome.
func (e *Engine) runStage(ctx context.Context, p *polygon, stage string, fn func(context.Context) (model.Metrics, error)) (m model.Metrics, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = model.UnexpectedError("morpho."+stage, eris.New(fmt.Sprintf("panic: %v\n%s", r, debug.Stack())))
		}
		outcome := OutcomeOK
		if err != nil {
			outcome = model.KindOf(err).String()
		} else if m == nil && stage != "network" {
			outcome = OutcomeSkipped
		}
		e.rec.ObserveStage(stage, outcome, time.Since(start))
		logStage(p.log.With(zap.String("stage", stage), zap.String("state", string(p.state))), err, time.Since(start))
	}()
	return fn(ctx)
}

func logStage(log *zap.Logger, err error, d time.Duration) {
	if err == nil {
		log.Debug("morpho: stage complete", zap.Duration("elapsed", d))
		return
	}
	kind := model.KindOf(err)
	switch kind {
	case model.KindAcquisition, model.KindDegenerate:
		log.Warn("morpho: stage skipped", zap.String("kind", kind.String()), zap.Error(err))
	case model.KindConfiguration:
		log.Error("morpho: stage misconfigured", zap.String("kind", kind.String()), zap.Error(err))
	default:
		log.Error("morpho: stage failed",
			zap.String("kind", kind.String()),
			zap.Error(err),
			zap.String("trace", eris.ToString(err, true)),
		)
	}
}

// Coverage reports which columns of t have a value for some polygon and
// logs the missing ones.
func Coverage(t *model.MetricTable) model.Coverage {
	cov := model.CoverageOf(t)
	log := zap.L().With(zap.String("component", "morpho"), zap.String("city", t.City))
	for _, name := range cov.Missing {
		log.Info("morpho: coverage", zap.String("metric", name), zap.String("status", "missing"))
	}
	for _, name := range cov.Available {
		log.Debug("morpho: coverage", zap.String("metric", name), zap.String("status", "available"))
	}
	return cov
}
