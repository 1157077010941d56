// Package dispatcher turns a validated create request into a queued job row
// and a single acknowledged call to the remote transcription worker.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Defaults applied to create requests, matching what the worker assumes.
const (
	DefaultLanguage    = "en"
	DefaultModelSize   = "large-v2"
	DefaultMinSpeakers = 2
	DefaultMaxSpeakers = 6
)

// JobStore is the durable store the dispatcher inserts into.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
}

// CreateRequest is the client-facing payload for submitting a job. Exactly
// one of UploadReference and ExternalURL must be set.
type CreateRequest struct {
	UploadReference string `json:"upload_reference"`
	ExternalURL     string `json:"external_url" validate:"omitempty,url"`
	MediaType       string `json:"media_type" validate:"required,oneof=audio video"`
	Language        string `json:"language"`
	ModelSize       string `json:"model_size"`
	Diarize         *bool  `json:"diarize"`
	MinSpeakers     int    `json:"min_speakers" validate:"omitempty,min=1,max=10"`
	MaxSpeakers     int    `json:"max_speakers" validate:"omitempty,min=1,max=10"`
}

// dispatchPayload is the wire format of the outbound worker call.
type dispatchPayload struct {
	JobID       string `json:"job_id"`
	Bucket      string `json:"bucket"`
	ObjectKey   string `json:"object_key"`
	ExternalURL string `json:"external_url,omitempty"`
	MediaType   string `json:"media_type"`
	Language    string `json:"language"`
	ModelSize   string `json:"model_size"`
	DoDiarize   bool   `json:"do_diarize"`
	MinSpeakers int    `json:"min_speakers"`
	MaxSpeakers int    `json:"max_speakers"`
}

// Dispatcher validates create requests, records the job, and hands it to the
// remote worker.
type Dispatcher struct {
	jobs      JobStore
	workerURL string
	bucket    string
	client    *http.Client
	validate  *validator.Validate
	log       *logrus.Entry
}

// New creates a dispatcher. The HTTP client timeout bounds the dispatch call
// so a hung worker cannot pin request handlers.
func New(jobs JobStore, workerURL, bucket string, timeout time.Duration, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:      jobs,
		workerURL: workerURL,
		bucket:    bucket,
		client:    &http.Client{Timeout: timeout},
		validate:  validator.New(),
		log:       log.WithField("component", "dispatcher"),
	}
}

// Create validates the request, inserts a queued job row, and dispatches it
// to the worker. The row insert strictly precedes the dispatch call so a
// webhook racing ahead of the dispatch response always finds a row to update.
//
// A failed dispatch surfaces as an error even though the queued row remains;
// that row is an orphan the sweeper will eventually fail.
func (d *Dispatcher) Create(ctx context.Context, req CreateRequest, owner *string) (*models.Job, error) {
	job, err := d.buildJob(req, owner)
	if err != nil {
		return nil, err
	}

	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"source": job.SourceKind,
	}).Info("job created, dispatching to worker")

	if err := d.dispatch(ctx, job); err != nil {
		d.log.WithFields(logrus.Fields{
			"job_id": job.ID,
		}).WithError(err).Error("dispatch failed, job row is orphaned")
		return nil, err
	}

	return job, nil
}

func (d *Dispatcher) buildJob(req CreateRequest, owner *string) (*models.Job, error) {
	if err := d.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid create request", err)
	}
	if (req.UploadReference == "") == (req.ExternalURL == "") {
		return nil, apperr.New(apperr.KindValidation, "exactly one of upload_reference and external_url must be set")
	}

	job := &models.Job{
		OwnerID:     owner,
		MediaType:   models.MediaType(req.MediaType),
		Language:    req.Language,
		ModelSize:   req.ModelSize,
		Diarize:     true,
		MinSpeakers: req.MinSpeakers,
		MaxSpeakers: req.MaxSpeakers,
	}

	if req.UploadReference != "" {
		job.SourceKind = models.SourceUpload
		job.ObjectKey = req.UploadReference
	} else {
		job.SourceKind = models.SourceYouTube
		job.ExternalURL = req.ExternalURL
	}

	if job.Language == "" {
		job.Language = DefaultLanguage
	}
	if job.ModelSize == "" {
		job.ModelSize = DefaultModelSize
	}
	if req.Diarize != nil {
		job.Diarize = *req.Diarize
	}
	if job.MinSpeakers == 0 {
		job.MinSpeakers = DefaultMinSpeakers
	}
	if job.MaxSpeakers == 0 {
		job.MaxSpeakers = DefaultMaxSpeakers
	}
	if job.MinSpeakers > job.MaxSpeakers {
		return nil, apperr.New(apperr.KindValidation, "min_speakers must not exceed max_speakers")
	}

	return job, nil
}

// dispatch makes the single outbound worker call. Any 2xx acknowledges the
// job; everything else is a dispatch failure.
func (d *Dispatcher) dispatch(ctx context.Context, job *models.Job) error {
	payload := dispatchPayload{
		JobID:       job.ID,
		Bucket:      d.bucket,
		ObjectKey:   job.ObjectKey,
		ExternalURL: job.ExternalURL,
		MediaType:   string(job.MediaType),
		Language:    job.Language,
		ModelSize:   job.ModelSize,
		DoDiarize:   job.Diarize,
		MinSpeakers: job.MinSpeakers,
		MaxSpeakers: job.MaxSpeakers,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.KindDispatch, "failed to encode dispatch payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.workerURL, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindDispatch, "failed to build dispatch request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindDispatch, "worker unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.New(apperr.KindDispatch, fmt.Sprintf("worker rejected dispatch with status %d", resp.StatusCode))
	}

	return nil
}
