// Package schedule provides recurring pipeline execution backed by the
// schedule catalog.
package schedule

import "time"

// Job is one recurring pipeline run.
type Job struct {
	ID              string
	Pipeline        string // named pipeline to run (e.g. "rss-to-obsidian")
	Payload         []byte // JSON parameters forwarded to the runner
	IntervalSeconds int
	NextRunAt       *time.Time
	LastRunAt       *time.Time
	LastError       string
	State           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// State constants for scheduled jobs
const (
	StateActive  = "active"
	StatePaused  = "paused"
	StateDeleted = "deleted" // soft delete
)
