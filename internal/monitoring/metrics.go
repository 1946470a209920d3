// Package monitoring reports pipeline health: prometheus metrics for stage
// and polygon outcomes, and periodic run checks that alert through a webhook.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/morpho"
)

// Recorder exports pipeline outcomes as prometheus metrics. It satisfies
// morpho.Recorder.
type Recorder struct {
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	polygonTotal  *prometheus.CounterVec
	cityTotal     *prometheus.CounterVec
	metricMissing *prometheus.GaugeVec
}

var _ morpho.Recorder = (*Recorder)(nil)

// NewRecorder creates the metric vectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "morpho_stage_total",
				Help: "Stage executions by outcome",
			},
			[]string{"stage", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "morpho_stage_duration_seconds",
				Help:    "Stage wall time",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"stage"},
		),
		polygonTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "morpho_polygon_total",
				Help: "Polygons reaching a pipeline state",
			},
			[]string{"state"},
		),
		cityTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "morpho_city_total",
				Help: "Cities finished by run status",
			},
			[]string{"status"},
		),
		metricMissing: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "morpho_metric_missing",
				Help: "1 when no polygon of the city's last table has the metric",
			},
			[]string{"city", "metric"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.stageTotal, r.stageDuration, r.polygonTotal, r.cityTotal, r.metricMissing)
	}
	return r
}

// ObserveStage counts one stage execution.
func (r *Recorder) ObserveStage(stage, outcome string, d time.Duration) {
	r.stageTotal.WithLabelValues(stage, outcome).Inc()
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObservePolygon counts a polygon reaching state.
func (r *Recorder) ObservePolygon(state morpho.State) {
	r.polygonTotal.WithLabelValues(string(state)).Inc()
}

// ObserveCity counts a finished city.
func (r *Recorder) ObserveCity(status model.RunStatus) {
	r.cityTotal.WithLabelValues(string(status)).Inc()
}

// ObserveCoverage publishes which metrics of city are missing.
func (r *Recorder) ObserveCoverage(city string, cov model.Coverage) {
	for _, name := range cov.Missing {
		r.metricMissing.WithLabelValues(city, name).Set(1)
	}
	for _, name := range cov.Available {
		r.metricMissing.WithLabelValues(city, name).Set(0)
	}
}
