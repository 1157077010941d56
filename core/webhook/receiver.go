// Package webhook verifies and applies terminal status reports from the
// remote transcription worker.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Applier applies a verified worker report to the job store.
type Applier interface {
	ApplyWorkerReport(ctx context.Context, report models.WorkerReport, overwriteTerminal bool) (bool, error)
}

// payload is the worker's wire format for the callback body.
type payload struct {
	JobID           string   `json:"job_id"`
	Status          string   `json:"status"`
	MarkdownKey     *string  `json:"md_key"`
	JSONKey         *string  `json:"json_key"`
	ErrorMessage    *string  `json:"error_message"`
	DurationSeconds *float64 `json:"duration_seconds"`
	SizeBytes       *int64   `json:"size_bytes"`
}

// Receiver authenticates worker callbacks and applies the reported terminal
// transition exactly once.
type Receiver struct {
	secret            []byte
	jobs              Applier
	overwriteTerminal bool
	log               *logrus.Entry
}

// New creates a receiver. overwriteTerminal disables the monotonic guard and
// restores last-write-wins for workers known to re-send reports with
// corrected results.
func New(secret string, jobs Applier, overwriteTerminal bool, log *logrus.Logger) *Receiver {
	return &Receiver{
		secret:            []byte(secret),
		jobs:              jobs,
		overwriteTerminal: overwriteTerminal,
		log:               log.WithField("component", "webhook"),
	}
}

// Receive verifies the signature over the raw body, validates the payload,
// and applies the transition. Each gate short-circuits without mutating
// state:
//
//	bad signature  -> unauthorized
//	bad payload    -> validation
//	unknown job    -> not_found
//	store failure  -> storage
//
// A report for a job already in a terminal state is acknowledged as success
// without effect, which makes re-delivery idempotent.
func (r *Receiver) Receive(ctx context.Context, rawBody []byte, signature string) error {
	if err := r.verifySignature(rawBody, signature); err != nil {
		r.log.WithError(err).Warn("rejected webhook with invalid signature")
		return err
	}

	report, err := parseReport(rawBody)
	if err != nil {
		r.log.WithError(err).Warn("rejected webhook with invalid payload")
		return err
	}

	applied, err := r.jobs.ApplyWorkerReport(ctx, report, r.overwriteTerminal)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"job_id": report.JobID,
			"status": report.Status,
		}).WithError(err).Error("failed to apply worker report")
		return err
	}

	entry := r.log.WithFields(logrus.Fields{
		"job_id": report.JobID,
		"status": report.Status,
	})
	if applied {
		entry.Info("applied worker report")
	} else {
		entry.Info("ignored worker report for terminal job")
	}
	return nil
}

// verifySignature checks the hex HMAC-SHA256 of the raw, unparsed body. The
// comparison runs on decoded digests via hmac.Equal so a forger learns
// nothing from response timing.
func (r *Receiver) verifySignature(rawBody []byte, signature string) error {
	if len(r.secret) == 0 {
		return apperr.New(apperr.KindUnauthorized, "webhook secret not configured")
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return apperr.New(apperr.KindUnauthorized, "malformed signature")
	}

	mac := hmac.New(sha256.New, r.secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return apperr.New(apperr.KindUnauthorized, "signature mismatch")
	}
	return nil
}

func parseReport(rawBody []byte) (models.WorkerReport, error) {
	var p payload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return models.WorkerReport{}, apperr.Wrap(apperr.KindValidation, "malformed webhook body", err)
	}

	if _, err := uuid.Parse(p.JobID); err != nil {
		return models.WorkerReport{}, apperr.New(apperr.KindValidation, "missing or invalid job_id")
	}

	status := models.JobStatus(p.Status)
	if status != models.JobStatusDone && status != models.JobStatusError {
		return models.WorkerReport{}, apperr.Newf(apperr.KindValidation, "invalid status %q", p.Status)
	}

	return models.WorkerReport{
		JobID:           p.JobID,
		Status:          status,
		MarkdownKey:     p.MarkdownKey,
		JSONKey:         p.JSONKey,
		ErrorMessage:    p.ErrorMessage,
		DurationSeconds: p.DurationSeconds,
		SizeBytes:       p.SizeBytes,
	}, nil
}
