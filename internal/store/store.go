// Package store persists metric tables, boundaries, run records and the
// Overpass response cache.
package store

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/morpho-cli/internal/model"
)

// ErrTableNotFound is returned by LoadTable for a city never saved.
var ErrTableNotFound = eris.New("store: table not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	City   string          `json:"city,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the morphometrics pipeline.
type Store interface {
	// Metric tables
	SaveTable(ctx context.Context, t *model.MetricTable) error
	LoadTable(ctx context.Context, city string) (*model.MetricTable, error)
	HasTable(ctx context.Context, city string) (bool, error)
	ListCities(ctx context.Context) ([]string, error)

	// Boundaries
	SaveBoundaries(ctx context.Context, c *model.Collection) error
	LoadBoundaries(ctx context.Context, city string) (*model.Collection, error)

	// Runs
	StartRun(ctx context.Context, city string, full bool) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, polygons int, runErr error) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Overpass cache
	GetCachedQuery(ctx context.Context, key string) ([]byte, error)
	SetCachedQuery(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredQueries(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// QueryCache adapts a Store to the Overpass client cache.
type QueryCache struct {
	Store Store
	TTL   time.Duration
}

// Get returns a cached response; ok is false on a miss or after expiry.
func (c QueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.Store.GetCachedQuery(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

// Set stores a response for TTL.
func (c QueryCache) Set(ctx context.Context, key string, data []byte) error {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return c.Store.SetCachedQuery(ctx, key, data, ttl)
}

// valueRow is one stored metric value.
type valueRow struct {
	polygonID int
	metric    string
	value     float64
}

// tableValues flattens the finite values of t in row then column order.
func tableValues(t *model.MetricTable) []valueRow {
	var out []valueRow
	cols := t.Columns()
	for _, r := range t.Rows() {
		for _, c := range cols {
			v, ok := r.Values[c]
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out = append(out, valueRow{polygonID: r.ID, metric: c, value: v})
		}
	}
	return out
}

// rowMeta is the identity of one stored row.
type rowMeta struct {
	id   int
	name string
}

// buildTable reassembles a table from its stored parts.
func buildTable(city string, columns []string, rows []rowMeta, values []valueRow) *model.MetricTable {
	ids := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = r.id
	}
	t := model.NewMetricTable(city, ids, columns...)
	for _, r := range rows {
		t.SetName(r.id, r.name)
	}
	for _, v := range values {
		t.Set(v.polygonID, v.metric, v.value)
	}
	return t
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
