package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/config"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/store"
)

// useTestConfig points the global config at a temporary sqlite database.
func useTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := cfg
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "morpho.db")},
		Paths: config.PathsConfig{DataDir: filepath.Join(dir, "boundaries"), OutputDir: filepath.Join(dir, "results")},
		Server: config.ServerConfig{Port: 8080},
		Monitoring: config.MonitoringConfig{
			FailureRateThreshold: 0.25,
			LookbackWindowHours:  24,
		},
	}
	t.Cleanup(func() { cfg = prev })
	return dir
}

func square(x, y, s float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{x, y}, {x + s, y}, {x + s, y + s}, {x, y + s}, {x, y}}}}
}

// seedCity stores two boundaries for city and, when withTable is set, a
// minimal table with one missing column.
func seedCity(t *testing.T, st store.Store, city string, withTable bool) {
	t.Helper()
	ctx := context.Background()
	c := &model.Collection{City: city, Boundaries: []model.Boundary{
		{ID: 0, Name: city + " Centre", Geometry: square(2.33, 48.85, 0.01)},
		{ID: 1, Name: city + " Nord", Geometry: square(2.35, 48.86, 0.01)},
	}}
	require.NoError(t, st.SaveBoundaries(ctx, c))
	if !withTable {
		return
	}
	tbl := model.NewMetricTable(city, c.IDs(), model.MetricLon, model.MetricLat, model.MetricStreetDensity)
	for _, b := range c.Boundaries {
		tbl.SetName(b.ID, b.Name)
		tbl.Set(b.ID, model.MetricLon, 2.34+float64(b.ID)/100)
		tbl.Set(b.ID, model.MetricLat, 48.855+float64(b.ID)/100)
	}
	require.NoError(t, st.SaveTable(ctx, tbl))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := openStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}
