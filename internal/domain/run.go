package domain

import "time"

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunSummary holds the counters of a finished pipeline run.
type RunSummary struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          string
	ReadingsLoaded  int
	ReadingsCleaned int
	UnitsSegmented  int
	UnitsSkipped    int
	Err             error
}
