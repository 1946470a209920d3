// Package export writes stored metric tables as CSV, XLSX or GeoJSON.
package export

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/morpho-cli/internal/model"
)

// Fixed leading columns of a concatenated frame.
const (
	ColumnCity = "city"
	ColumnID   = "id"
	ColumnName = "name"
)

// Frame is the union of several city tables. Columns holds the metric
// columns in first-seen order; a row lacking a column reads NaN.
type Frame struct {
	Columns []string
	Rows    []FrameRow
}

// FrameRow is one polygon of one city.
type FrameRow struct {
	City   string
	ID     int
	Name   string
	Values []float64
}

// Concat stacks tables in the given order.
func Concat(tables ...*model.MetricTable) *Frame {
	f := &Frame{}
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns() {
			if !seen[c] {
				seen[c] = true
				f.Columns = append(f.Columns, c)
			}
		}
	}
	for _, t := range tables {
		for _, r := range t.Rows() {
			vals := make([]float64, len(f.Columns))
			for i, c := range f.Columns {
				vals[i] = r.Value(c)
			}
			f.Rows = append(f.Rows, FrameRow{City: t.City, ID: r.ID, Name: r.Name, Values: vals})
		}
	}
	return f
}

// Header returns the full header row.
func (f *Frame) Header() []string {
	return append([]string{ColumnCity, ColumnID, ColumnName}, f.Columns...)
}

// Cities returns the number of distinct cities in the frame.
func (f *Frame) Cities() int {
	set := make(map[string]struct{})
	for _, r := range f.Rows {
		set[r.City] = struct{}{}
	}
	return len(set)
}

// FormatValue renders a metric; missing values are empty.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteFile writes f to path, choosing the format from the extension.
func WriteFile(path string, f *Frame) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return WriteCSVFile(path, f)
	case ".xlsx":
		return WriteXLSX(path, f)
	}
	return eris.Errorf("export: unsupported output %q, want .csv or .xlsx", path)
}
