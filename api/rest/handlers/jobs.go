package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"transcript-coordinator/api/rest/middleware"
	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/dispatcher"
	"transcript-coordinator/core/models"
	"transcript-coordinator/core/reader"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// EventLister reads the transition history of a job.
type EventLister interface {
	GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	dispatcher *dispatcher.Dispatcher
	reader     *reader.Reader
	events     EventLister
	log        *logrus.Entry
}

// NewJobHandler creates a new job handler
func NewJobHandler(d *dispatcher.Dispatcher, rd *reader.Reader, events EventLister, log *logrus.Logger) *JobHandler {
	return &JobHandler{
		dispatcher: d,
		reader:     rd,
		events:     events,
		log:        log.WithField("handler", "jobs"),
	}
}

// CreateJobResponse is returned after a job is created and dispatched.
type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CreateJob handles POST /v1/jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req dispatcher.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	requester := middleware.RequesterFrom(r.Context())
	job, err := h.dispatcher.Create(r.Context(), req, requester)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	requester := middleware.RequesterFrom(r.Context())

	job, transcript, err := h.reader.Get(r.Context(), jobID, requester)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResponse(job, transcript))
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	requester := middleware.RequesterFrom(r.Context())

	jobs, err := h.reader.List(r.Context(), requester)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	items := make([]map[string]interface{}, len(jobs))
	for i, job := range jobs {
		items[i] = jobSummary(job)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	requester := middleware.RequesterFrom(r.Context())

	// Ownership rules for events match the job itself.
	if _, _, err := h.reader.Get(r.Context(), jobID, requester); err != nil {
		writeError(w, h.log, err)
		return
	}

	events, err := h.events.GetJobEvents(r.Context(), jobID, 100)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":        event.At,
			"to_status": event.ToStatus,
			"reason":    event.Reason,
		}
		if event.FromStatus != nil {
			item["from_status"] = *event.FromStatus
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func jobSummary(job *models.Job) map[string]interface{} {
	source := map[string]interface{}{"kind": job.SourceKind}
	switch job.SourceKind {
	case models.SourceUpload:
		source["object_key"] = job.ObjectKey
	case models.SourceYouTube:
		source["url"] = job.ExternalURL
	}

	return map[string]interface{}{
		"id":         job.ID,
		"source":     source,
		"media_type": job.MediaType,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
}

func jobResponse(job *models.Job, transcript *models.Transcript) map[string]interface{} {
	resp := jobSummary(job)
	resp["language"] = job.Language
	resp["model_size"] = job.ModelSize
	resp["diarize"] = job.Diarize

	if job.ErrorMessage != nil {
		resp["error_message"] = *job.ErrorMessage
	}
	if job.DurationSeconds != nil {
		resp["duration_seconds"] = *job.DurationSeconds
	}
	if job.SizeBytes != nil {
		resp["size_bytes"] = *job.SizeBytes
	}

	if transcript != nil {
		t := map[string]interface{}{
			"id":         transcript.ID,
			"complete":   transcript.Complete(),
			"created_at": transcript.CreatedAt,
		}
		if transcript.SpeakerLabels != nil {
			t["speaker_labels"] = transcript.SpeakerLabels
		}
		if transcript.WordTimestamps != nil {
			t["word_timestamps"] = transcript.WordTimestamps
		}
		resp["transcript"] = t
	}

	return resp
}
