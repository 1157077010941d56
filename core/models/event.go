package models

import "time"

// JobEvent records a single status transition for audit purposes.
type JobEvent struct {
	ID         int64
	JobID      string
	At         time.Time
	FromStatus *JobStatus
	ToStatus   JobStatus
	Reason     string
}
