package monitoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/store"
)

// mockSource implements Source for testing.
type mockSource struct {
	runs    []model.Run
	tables  map[string]*model.MetricTable
	listErr error
	loadErr error
}

func (m *mockSource) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockSource) ListCities(context.Context) ([]string, error) {
	var out []string
	for city := range m.tables {
		out = append(out, city)
	}
	return out, nil
}

func (m *mockSource) LoadTable(_ context.Context, city string) (*model.MetricTable, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	t, ok := m.tables[city]
	if !ok {
		return nil, store.ErrTableNotFound
	}
	return t, nil
}

// minimalTable fills every minimal metric except those of skip.
func minimalTable(city string, skip model.Group) *model.MetricTable {
	t := model.NewMetricTable(city, []int{0, 1}, model.MetricSet(false)...)
	for _, g := range model.Groups {
		if g == skip {
			continue
		}
		for _, name := range model.GroupMetrics(g, false) {
			t.Set(0, name, 1)
		}
	}
	return t
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockSource{}, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0, snap.RunsFailed)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0, snap.CitiesStored)
	assert.Nil(t, snap.MissingGroups)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	src := &mockSource{
		runs: []model.Run{
			{ID: "1", City: "Paris", Status: model.RunStatusComplete, StartedAt: now.Add(-1 * time.Hour)},
			{ID: "2", City: "Lyon", Status: model.RunStatusComplete, StartedAt: now.Add(-2 * time.Hour)},
			{ID: "3", City: "Nice", Status: model.RunStatusFailed, StartedAt: now.Add(-3 * time.Hour)},
			{ID: "4", City: "Lille", Status: model.RunStatusRunning, StartedAt: now.Add(-30 * time.Minute)},
			{ID: "5", City: "Brest", Status: model.RunStatusSkipped, StartedAt: now.Add(-30 * time.Minute)},
			// Outside lookback window.
			{ID: "6", City: "Metz", Status: model.RunStatusFailed, StartedAt: now.Add(-48 * time.Hour)},
		},
	}

	snap, err := NewCollector(src, nil).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsSkipped)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001)
	assert.Equal(t, []string{"Nice"}, snap.FailedCities)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	src := &mockSource{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusRunning, StartedAt: now.Add(-1 * time.Hour)},
		},
	}

	snap, err := NewCollector(src, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.FailRate)
}

func TestCollector_MissingGroups(t *testing.T) {
	src := &mockSource{
		tables: map[string]*model.MetricTable{
			"Paris": minimalTable("Paris", ""),
			"Lyon":  minimalTable("Lyon", model.GroupBuilt),
		},
	}
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	snap, err := NewCollector(src, rec).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.CitiesStored)
	require.Len(t, snap.MissingGroups, 1)
	assert.Equal(t, []model.Group{model.GroupBuilt}, snap.MissingGroups["Lyon"])

	missing := rec.metricMissing.WithLabelValues("Lyon", model.MetricAvgBuildingArea)
	assert.Equal(t, 1.0, testutil.ToFloat64(missing))
	present := rec.metricMissing.WithLabelValues("Paris", model.MetricAvgBuildingArea)
	assert.Equal(t, 0.0, testutil.ToFloat64(present))
}

func TestCollector_FullTableUsesFullGroups(t *testing.T) {
	tbl := model.NewMetricTable("Paris", []int{0}, model.MetricSet(true)...)
	for _, g := range model.Groups {
		for _, name := range model.GroupMetrics(g, false) {
			tbl.Set(0, name, 1)
		}
	}
	// Only the scale extras are missing; the base fractal dimension keeps
	// the group alive.
	tbl.Set(0, model.MetricCompactnessArea, math.NaN())

	src := &mockSource{tables: map[string]*model.MetricTable{"Paris": tbl}}
	snap, err := NewCollector(src, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Nil(t, snap.MissingGroups)
}

func TestCollector_Errors(t *testing.T) {
	_, err := NewCollector(&mockSource{listErr: errors.New("boom")}, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")

	src := &mockSource{
		tables:  map[string]*model.MetricTable{"Paris": minimalTable("Paris", "")},
		loadErr: errors.New("disk"),
	}
	_, err = NewCollector(src, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load table Paris")
}
