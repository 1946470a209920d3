package main

import (
	"net/http"
	"time"

	"github.com/sells-group/morpho-cli/internal/buildings"
	"github.com/sells-group/morpho-cli/internal/fractal"
	"github.com/sells-group/morpho-cli/internal/morpho"
	"github.com/sells-group/morpho-cli/internal/network"
	"github.com/sells-group/morpho-cli/internal/resilience"
	"github.com/sells-group/morpho-cli/internal/store"
	"github.com/sells-group/morpho-cli/pkg/overpass"
)

// newOverpassClient builds the shared Overpass client. Results are cached
// in st.
func newOverpassClient(st store.Store) overpass.Client {
	o := cfg.Overpass
	policy := resilience.PolicyFrom(o.RetryAttempts, time.Duration(o.RetryBackoffSecs)*time.Second)
	policy.OnRetry = resilience.LogRetries("overpass")

	// The server-side [timeout:] plus headroom for the transfer.
	httpTimeout := time.Duration(o.TimeoutSecs+30) * time.Second

	opts := []overpass.Option{
		overpass.WithEndpoint(o.Endpoint),
		overpass.WithHTTPClient(&http.Client{Timeout: httpTimeout}),
		overpass.WithRateLimit(o.RateLimit),
		overpass.WithRetry(policy),
		overpass.WithBreaker(resilience.NewBreaker(o.BreakerThreshold, time.Duration(o.BreakerCooldown)*time.Second)),
	}
	if st != nil {
		opts = append(opts, overpass.WithCache(store.QueryCache{
			Store: st,
			TTL:   time.Duration(o.CacheTTLHours) * time.Hour,
		}))
	}
	return overpass.NewClient(opts...)
}

func engineOptions() morpho.Options {
	render := fractal.DefaultRenderOptions()
	render.Size = cfg.Morpho.CanvasPx

	b := buildings.DefaultOptions()
	b.MinArea = cfg.Buildings.MinArea
	b.Simplify = cfg.Buildings.Simplify
	b.Buffer = cfg.Buildings.Buffer
	b.MaxCells = cfg.Buildings.MaxCells
	b.NetworkMaxDistance = cfg.Buildings.NetworkMaxDistance
	b.TickSpacing = cfg.Profile.TickSpacing
	b.TickLength = cfg.Profile.TickLength

	opts := morpho.DefaultOptions()
	opts.Render = render
	opts.Buildings = b
	if cfg.Morpho.OrientationBins > 0 {
		opts.OrientationBins = cfg.Morpho.OrientationBins
	}
	return opts
}

// newEngine wires the Overpass-backed network and footprint sources into
// the morphometrics engine.
func newEngine(st store.Store, rec morpho.Recorder) *morpho.Engine {
	client := newOverpassClient(st)
	nb := &network.SourceBuilder{
		Source:  network.NewOverpassSource(client, cfg.Overpass.TimeoutSecs),
		Options: network.DefaultBuildOptions(),
	}
	fs := buildings.NewOverpassFootprints(client, cfg.Overpass.TimeoutSecs)
	return morpho.New(nb, fs, morpho.WithOptions(engineOptions()), morpho.WithRecorder(rec))
}
