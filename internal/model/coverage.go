package model

import (
	"math"
)

// Coverage reports, per metric column, whether any polygon has a value.
type Coverage struct {
	Available []string `json:"available"`
	Missing   []string `json:"missing"`
}

// CoverageOf computes the coverage of t in column order.
func CoverageOf(t *MetricTable) Coverage {
	var c Coverage
	for _, col := range t.Columns() {
		found := false
		for _, r := range t.Rows() {
			if !math.IsNaN(r.Value(col)) {
				found = true
				break
			}
		}
		if found {
			c.Available = append(c.Available, col)
		} else {
			c.Missing = append(c.Missing, col)
		}
	}
	return c
}

// IsAvailable reports whether name appears in the available list.
func (c Coverage) IsAvailable(name string) bool {
	for _, n := range c.Available {
		if n == name {
			return true
		}
	}
	return false
}

// MissingGroups returns the groups whose every metric is missing.
func (c Coverage) MissingGroups(full bool) []Group {
	missing := make(map[string]bool, len(c.Missing))
	for _, n := range c.Missing {
		missing[n] = true
	}
	var out []Group
	for _, g := range Groups {
		names := GroupMetrics(g, full)
		all := len(names) > 0
		for _, n := range names {
			if !missing[n] {
				all = false
				break
			}
		}
		if all {
			out = append(out, g)
		}
	}
	return out
}
