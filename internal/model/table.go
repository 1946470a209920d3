package model

import (
	"math"
	"slices"
)

// Metrics is the output of one metric group for one polygon.
type Metrics map[string]float64

// Row holds every metric for one polygon. Missing values are NaN.
type Row struct {
	ID     int
	Name   string
	Values map[string]float64
}

// Value returns the metric or NaN when the column is absent.
func (r *Row) Value(name string) float64 {
	v, ok := r.Values[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// MetricTable accumulates per-polygon metrics for one city. Columns are
// only ever appended and values only move from NaN to a finite number.
type MetricTable struct {
	City    string
	columns []string
	colSet  map[string]bool
	rows    []*Row
	byID    map[int]*Row
}

// NewMetricTable creates a table with one row per ID, every column NaN.
func NewMetricTable(city string, ids []int, columns ...string) *MetricTable {
	t := &MetricTable{
		City:   city,
		colSet: make(map[string]bool),
		byID:   make(map[int]*Row, len(ids)),
	}
	for _, id := range ids {
		r := &Row{ID: id, Values: make(map[string]float64)}
		t.rows = append(t.rows, r)
		t.byID[id] = r
	}
	t.AddColumns(columns...)
	return t
}

// AddColumns appends columns not yet present, initialised to NaN.
func (t *MetricTable) AddColumns(names ...string) {
	for _, n := range names {
		if t.colSet[n] {
			continue
		}
		t.colSet[n] = true
		t.columns = append(t.columns, n)
		for _, r := range t.rows {
			r.Values[n] = math.NaN()
		}
	}
}

// Columns returns the column names in insertion order.
func (t *MetricTable) Columns() []string {
	return slices.Clone(t.columns)
}

// HasColumn reports whether name is a column.
func (t *MetricTable) HasColumn(name string) bool {
	return t.colSet[name]
}

// Rows returns the rows in collection order.
func (t *MetricTable) Rows() []*Row {
	return t.rows
}

// Row returns the row for id.
func (t *MetricTable) Row(id int) (*Row, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Len returns the number of rows.
func (t *MetricTable) Len() int {
	return len(t.rows)
}

// SetName sets the display name of a row.
func (t *MetricTable) SetName(id int, name string) {
	if r, ok := t.byID[id]; ok {
		r.Name = name
	}
}

// Set writes v when it is finite and the row exists. Unknown columns are
// added first. It reports whether the value was written.
func (t *MetricTable) Set(id int, name string, v float64) bool {
	r, ok := t.byID[id]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	t.AddColumns(name)
	r.Values[name] = v
	return true
}

// Merge writes every finite value of m into row id and returns how many were written.
func (t *MetricTable) Merge(id int, m Metrics) int {
	if _, ok := t.byID[id]; !ok {
		return 0
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	slices.Sort(names)

	var n int
	for _, name := range names {
		if t.Set(id, name, m[name]) {
			n++
		}
	}
	return n
}

// Value returns the metric for id, NaN when missing.
func (t *MetricTable) Value(id int, name string) float64 {
	r, ok := t.byID[id]
	if !ok {
		return math.NaN()
	}
	return r.Value(name)
}
