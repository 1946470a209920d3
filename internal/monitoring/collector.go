package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of batch health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	RunsTotal    int      `json:"runs_total"`
	RunsComplete int      `json:"runs_complete"`
	RunsFailed   int      `json:"runs_failed"`
	RunsSkipped  int      `json:"runs_skipped"`
	RunsRunning  int      `json:"runs_running"`
	FailRate     float64  `json:"fail_rate"`
	FailedCities []string `json:"failed_cities,omitempty"`

	// Stored tables with at least one fully missing metric group.
	CitiesStored  int                      `json:"cities_stored"`
	MissingGroups map[string][]model.Group `json:"missing_groups,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the part of store.Store the collector reads.
type Source interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	ListCities(ctx context.Context) ([]string, error)
	LoadTable(ctx context.Context, city string) (*model.MetricTable, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	src Source
	rec *Recorder
}

// NewCollector creates a new metrics collector. rec may be nil.
func NewCollector(src Source, rec *Recorder) *Collector {
	return &Collector{src: src, rec: rec}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.src.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
			snap.FailedCities = append(snap.FailedCities, r.City)
		case model.RunStatusSkipped:
			snap.RunsSkipped++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	sort.Strings(snap.FailedCities)

	cities, err := c.src.ListCities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list cities")
	}
	snap.CitiesStored = len(cities)
	for _, city := range cities {
		t, err := c.src.LoadTable(ctx, city)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: load table %s", city)
		}
		cov := model.CoverageOf(t)
		if c.rec != nil {
			c.rec.ObserveCoverage(city, cov)
		}
		full := t.HasColumn(model.MetricCompactnessArea)
		if groups := cov.MissingGroups(full); len(groups) > 0 {
			if snap.MissingGroups == nil {
				snap.MissingGroups = make(map[string][]model.Group)
			}
			snap.MissingGroups[city] = groups
		}
	}

	return snap, nil
}
