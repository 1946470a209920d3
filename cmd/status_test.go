package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/morpho-cli/internal/model"
)

func TestCoverageFor(t *testing.T) {
	tbl := model.NewMetricTable("Paris", []int{0, 1}, model.MetricLon, model.MetricLat, model.MetricStreetDensity)
	tbl.Set(0, model.MetricLon, 2.3)
	tbl.Set(1, model.MetricLat, 48.8)

	row := coverageFor(tbl)
	assert.Equal(t, "Paris", row.City)
	assert.False(t, row.Full)
	assert.Equal(t, 2, row.Polygons)
	assert.Equal(t, []string{model.MetricLon, model.MetricLat}, row.Coverage.Available)
	assert.Equal(t, []string{model.MetricStreetDensity}, row.Coverage.Missing)
}

func TestCoverageFor_FullSet(t *testing.T) {
	tbl := model.NewMetricTable("Paris", []int{0}, model.MetricCompactnessArea)
	assert.True(t, coverageFor(tbl).Full)
}

func TestFormatCoverage(t *testing.T) {
	rows := []coverageRow{{
		City:          "Paris",
		Polygons:      20,
		Coverage:      model.Coverage{Available: []string{"lon", "lat"}, Missing: []string{"street_density"}},
		MissingGroups: []model.Group{model.GroupInfra},
	}}

	var buf bytes.Buffer
	formatCoverage(&buf, rows, false)
	out := buf.String()
	assert.Contains(t, out, "MISSING_GROUPS")
	assert.Contains(t, out, "Paris")
	assert.Contains(t, out, "minimal")
	assert.Contains(t, out, "infra")
	assert.NotContains(t, out, "missing: street_density")

	buf.Reset()
	formatCoverage(&buf, rows, true)
	assert.Contains(t, buf.String(), "missing: street_density")
}

func TestFormatRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	runs := []model.Run{
		{ID: "0123456789abcdef", City: "Paris", Status: model.RunStatusComplete, Polygons: 20, StartedAt: started, FinishedAt: &finished},
		{ID: "short", City: "Lyon", Status: model.RunStatusRunning, StartedAt: started},
	}

	var buf bytes.Buffer
	formatRuns(&buf, runs)
	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "2026-03-01 10:00:00")
	assert.Contains(t, out, "running")
}
