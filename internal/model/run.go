package model

import (
	"time"
)

// RunStatus is the state of one city in a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusSkipped  RunStatus = "skipped"
)

// Run records the processing of one city.
type Run struct {
	ID         string     `json:"id"`
	City       string     `json:"city"`
	Full       bool       `json:"full"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Polygons   int        `json:"polygons"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
