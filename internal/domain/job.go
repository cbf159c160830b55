// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// Job represents one unit of capture work. A job is owned by exactly one
// worker at a time: it moves from the queue to a worker and back (on
// retry) or out to the source acknowledgement (on a terminal outcome).
type Job struct {
	// ID is the opaque job-source identifier (CSV row id, DB primary key).
	ID string `json:"row_id"`
	// URL is the capture target.
	URL string `json:"url"`
	// Domain is the logical site the URL belongs to. It selects the
	// destination partition and, for DB sources, the table to update.
	Domain string `json:"domain"`
	// Sandbox is the name of the execution environment the job is
	// currently assigned to. Set on every dispatch.
	Sandbox string `json:"container"`

	// Attempt is the 0-based retry counter. It only ever increases.
	Attempt int `json:"-"`
	// FirstEnqueuedAt is set when the job is first dispatched and never
	// overwritten, so elapsed time spans all retries.
	FirstEnqueuedAt time.Time `json:"-"`
}

// Elapsed returns the time since the job was first dispatched.
func (j *Job) Elapsed(now time.Time) time.Duration {
	if j.FirstEnqueuedAt.IsZero() {
		return 0
	}
	return now.Sub(j.FirstEnqueuedAt)
}
