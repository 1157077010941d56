// Package reader answers job and transcript queries, enforcing ownership.
package reader

import (
	"context"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"

	"github.com/sirupsen/logrus"
)

// ListLimit caps the number of jobs returned by List.
const ListLimit = 50

// Store is the read surface of the job store.
type Store interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Job, error)
	GetTranscriptByJobID(ctx context.Context, jobID string) (*models.Transcript, error)
	GetTranscript(ctx context.Context, id string) (*models.Transcript, error)
}

// Reader serves read queries for polling clients and the UI.
type Reader struct {
	store Store
	log   *logrus.Entry
}

// New creates a reader.
func New(store Store, log *logrus.Logger) *Reader {
	return &Reader{
		store: store,
		log:   log.WithField("component", "reader"),
	}
}

// Get returns a job with its transcript, if any. Anonymous jobs are visible
// to everyone; owned jobs only to their owner.
func (r *Reader) Get(ctx context.Context, id string, requester *string) (*models.Job, *models.Transcript, error) {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(job, requester); err != nil {
		return nil, nil, err
	}

	transcript, err := r.store.GetTranscriptByJobID(ctx, job.ID)
	if err != nil {
		return nil, nil, err
	}
	return job, transcript, nil
}

// List returns the requester's most recent jobs, newest first. Identity is
// required; anonymous jobs are only reachable by ID.
func (r *Reader) List(ctx context.Context, requester *string) ([]*models.Job, error) {
	if requester == nil {
		return nil, apperr.New(apperr.KindUnauthorized, "identity required to list jobs")
	}
	return r.store.ListJobsByOwner(ctx, *requester, ListLimit)
}

// GetTranscript returns a transcript with its owning job after checking the
// requester may see the job. Used by the download and speaker-label paths.
func (r *Reader) GetTranscript(ctx context.Context, id string, requester *string) (*models.Transcript, *models.Job, error) {
	transcript, err := r.store.GetTranscript(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	job, err := r.store.GetJob(ctx, transcript.JobID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(job, requester); err != nil {
		return nil, nil, err
	}
	return transcript, job, nil
}

func authorize(job *models.Job, requester *string) error {
	if job.OwnerID == nil {
		return nil
	}
	if requester == nil || *requester != *job.OwnerID {
		return apperr.New(apperr.KindForbidden, "job belongs to another user")
	}
	return nil
}
