package models

import "time"

// Transcript is the output artifact record for a completed job. A job has at
// most one transcript, created when the worker reports done with both output
// keys.
type Transcript struct {
	ID             string
	JobID          string
	MarkdownKey    *string
	JSONKey        *string
	WordTimestamps []WordTimestamp
	SpeakerLabels  map[string]string // speaker tag -> display name
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Complete reports whether both rendered outputs exist for download.
func (t *Transcript) Complete() bool {
	return t.MarkdownKey != nil && *t.MarkdownKey != "" && t.JSONKey != nil && *t.JSONKey != ""
}

// KeyForFormat returns the object-store key for a transcript export format,
// or "" if that format has not been produced.
func (t *Transcript) KeyForFormat(format TranscriptFormat) string {
	switch format {
	case FormatMarkdown:
		if t.MarkdownKey != nil {
			return *t.MarkdownKey
		}
	case FormatJSON:
		if t.JSONKey != nil {
			return *t.JSONKey
		}
	}
	return ""
}

// TranscriptFormat selects a rendered transcript export.
type TranscriptFormat string

const (
	FormatMarkdown TranscriptFormat = "markdown"
	FormatJSON     TranscriptFormat = "json"
)

// WordTimestamp is a single aligned word, ordered by StartSec within a
// transcript.
type WordTimestamp struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Speaker  string  `json:"speaker,omitempty"`
}
