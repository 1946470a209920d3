package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/morpho-cli/internal/export"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/store"
)

// BoundarySource loads the boundary collection of a city.
type BoundarySource interface {
	Load(ctx context.Context, city string) (*model.Collection, error)
}

// Computer turns a collection into a metric table.
type Computer interface {
	Compute(ctx context.Context, c *model.Collection, full bool) (*model.MetricTable, error)
}

// CityRecorder observes finished cities.
type CityRecorder interface {
	ObserveCity(status model.RunStatus)
	ObserveCoverage(city string, cov model.Coverage)
}

// Options controls one batch run.
type Options struct {
	Full      bool
	Overwrite bool
	// Start resumes the list at this city.
	Start   string
	Workers int
	// OutputDir, when set, receives a GeoJSON result file per city.
	OutputDir string
}

// Result is the outcome of one city.
type Result struct {
	City     string          `json:"city"`
	Status   model.RunStatus `json:"status"`
	Polygons int             `json:"polygons"`
	Error    string          `json:"error,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Summary collects the results of a batch in list order.
type Summary struct {
	Results []Result `json:"results"`
	Next    string   `json:"next,omitempty"`
}

// Count returns how many cities ended with status.
func (s *Summary) Count(status model.RunStatus) int {
	var n int
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Driver processes cities one collection at a time.
type Driver struct {
	store    store.Store
	loader   BoundarySource
	engine   Computer
	recorder CityRecorder
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithRecorder reports finished cities to r.
func WithRecorder(r CityRecorder) DriverOption {
	return func(d *Driver) { d.recorder = r }
}

// NewDriver creates a batch driver.
func NewDriver(st store.Store, loader BoundarySource, engine Computer, opts ...DriverOption) *Driver {
	d := &Driver{store: st, loader: loader, engine: engine}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run processes cities in order, starting at opts.Start. A failing city is
// recorded and the batch continues; the returned error is non-nil only
// when the start city is unknown or ctx is cancelled.
func (d *Driver) Run(ctx context.Context, cities []string, opts Options) (*Summary, error) {
	todo, err := FromStart(cities, opts.Start)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	log := zap.L().With(zap.String("component", "batch"))
	log.Info("batch: starting",
		zap.Int("cities", len(todo)),
		zap.Int("workers", workers),
		zap.Bool("full", opts.Full),
		zap.Bool("overwrite", opts.Overwrite),
	)

	results := make([]Result, len(todo))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, city := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := d.ProcessCity(gctx, city, opts)
			results[i] = res

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			log.Info("batch: progress",
				zap.String("city", city),
				zap.String("status", string(res.Status)),
				zap.Int("done", n),
				zap.Int("total", len(todo)),
			)
			return nil
		})
	}
	waitErr := g.Wait()

	sum := &Summary{}
	for _, r := range results {
		if r.City != "" {
			sum.Results = append(sum.Results, r)
		}
	}
	if len(todo) > 0 {
		if next, ok := Next(cities, todo[0]); ok {
			sum.Next = next
		}
	}
	log.Info("batch: finished",
		zap.Int("complete", sum.Count(model.RunStatusComplete)),
		zap.Int("failed", sum.Count(model.RunStatusFailed)),
		zap.Int("skipped", sum.Count(model.RunStatusSkipped)),
		zap.String("next", sum.Next),
	)

	if waitErr != nil {
		return sum, eris.Wrap(waitErr, "batch: run")
	}
	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "batch: run")
	}
	return sum, nil
}

// ProcessCity runs one city end to end. It never panics and never
// returns an error: the outcome is in the Result and the run record.
func (d *Driver) ProcessCity(ctx context.Context, city string, opts Options) (res Result) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "batch"), zap.String("city", city))
	res = Result{City: city}

	if !opts.Overwrite {
		exists, err := d.store.HasTable(ctx, city)
		if err != nil {
			log.Warn("batch: check existing table", zap.Error(err))
		}
		if exists {
			log.Info("batch: result exists, skipping")
			res.Status = model.RunStatusSkipped
			d.record(ctx, log, city, opts.Full, &res)
			return res
		}
	}

	run, err := d.store.StartRun(ctx, city, opts.Full)
	if err != nil {
		log.Error("batch: start run", zap.Error(err))
	}

	defer func() {
		if r := recover(); r != nil {
			err := model.UnexpectedError("batch.city", eris.New(fmt.Sprintf("panic: %v\n%s", r, debug.Stack())))
			res.Status = model.RunStatusFailed
			res.Error = err.Error()
			log.Error("batch: city panicked", zap.Error(err), zap.String("trace", eris.ToString(err, true)))
			d.finish(ctx, log, run, &res, err)
		}
		res.Elapsed = time.Since(start)
		if d.recorder != nil {
			d.recorder.ObserveCity(res.Status)
		}
	}()

	polygons, err := d.process(ctx, log, city, opts)
	res.Polygons = polygons
	if err != nil {
		res.Status = model.RunStatusFailed
		res.Error = err.Error()
		if model.IsKind(err, model.KindConfiguration) {
			log.Error("batch: boundaries", zap.Error(err))
		} else {
			log.Error("batch: city failed, skipping", zap.Error(err), zap.String("trace", eris.ToString(err, true)))
		}
	} else {
		res.Status = model.RunStatusComplete
		log.Info("batch: done", zap.Duration("elapsed", time.Since(start)))
	}
	d.finish(ctx, log, run, &res, err)
	return res
}

func (d *Driver) process(ctx context.Context, log *zap.Logger, city string, opts Options) (int, error) {
	c, err := d.loader.Load(ctx, city)
	if err != nil {
		return 0, err
	}
	if err := d.store.SaveBoundaries(ctx, c); err != nil {
		return c.Len(), eris.Wrap(err, "batch: save boundaries")
	}

	t, err := d.engine.Compute(ctx, c, opts.Full)
	if err != nil {
		return c.Len(), err
	}
	if d.recorder != nil {
		d.recorder.ObserveCoverage(city, model.CoverageOf(t))
	}
	if err := d.store.SaveTable(ctx, t); err != nil {
		return c.Len(), eris.Wrap(err, "batch: save table")
	}
	if opts.OutputDir != "" {
		path, err := export.SaveCity(opts.OutputDir, c, t)
		if err != nil {
			return c.Len(), err
		}
		log.Info("batch: wrote result", zap.String("path", path))
	}
	return c.Len(), nil
}

// record stores a run that needed no processing.
func (d *Driver) record(ctx context.Context, log *zap.Logger, city string, full bool, res *Result) {
	if d.recorder != nil {
		d.recorder.ObserveCity(res.Status)
	}
	run, err := d.store.StartRun(ctx, city, full)
	if err != nil {
		log.Warn("batch: start run", zap.Error(err))
		return
	}
	d.finish(ctx, log, run, res, nil)
}

func (d *Driver) finish(ctx context.Context, log *zap.Logger, run *model.Run, res *Result, runErr error) {
	if run == nil {
		return
	}
	// The run record outlives a cancelled batch.
	if err := d.store.FinishRun(context.WithoutCancel(ctx), run.ID, res.Status, res.Polygons, runErr); err != nil {
		log.Warn("batch: finish run", zap.Error(err))
	}
}
