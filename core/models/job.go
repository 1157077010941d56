package models

import "time"

// Job represents a single transcription request and its lifecycle state.
type Job struct {
	ID              string
	OwnerID         *string // nil for anonymous submissions
	SourceKind      SourceKind
	ObjectKey       string // set when SourceKind == SourceUpload
	ExternalURL     string // set when SourceKind == SourceYouTube
	MediaType       MediaType
	Language        string
	ModelSize       string
	Diarize         bool
	MinSpeakers     int
	MaxSpeakers     int
	Status          JobStatus
	ErrorMessage    *string
	DurationSeconds *float64
	SizeBytes       *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SourceKind identifies where the input media comes from.
type SourceKind string

const (
	SourceUpload  SourceKind = "upload"
	SourceYouTube SourceKind = "youtube"
)

// MediaType is the declared type of the input media.
type MediaType string

const (
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing is a display-only status. The worker reports no
	// intermediate progress, so no component ever writes it; clients may
	// infer it for jobs that have been queued for a while.
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// CanTransition reports whether a job may move from one status to another.
// Terminal states never regress, and nothing ever writes "processing".
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case JobStatusDone, JobStatusError:
		return from == JobStatusQueued
	default:
		return false
	}
}

// WorkerReport is the terminal status report delivered by the remote worker
// through the webhook, after signature and schema checks.
type WorkerReport struct {
	JobID           string
	Status          JobStatus // done or error only
	MarkdownKey     *string
	JSONKey         *string
	ErrorMessage    *string
	DurationSeconds *float64
	SizeBytes       *int64
}

// HasResultKeys reports whether the report carries both output pointers
// required to record a transcript.
func (r WorkerReport) HasResultKeys() bool {
	return r.MarkdownKey != nil && *r.MarkdownKey != "" && r.JSONKey != nil && *r.JSONKey != ""
}
