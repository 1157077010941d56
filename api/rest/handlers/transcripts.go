package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"transcript-coordinator/api/rest/middleware"
	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"
	"transcript-coordinator/core/reader"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// DownloadSigner issues short-lived download URLs.
type DownloadSigner interface {
	PresignDownload(ctx context.Context, key string) (string, time.Time, error)
}

// LabelUpdater persists speaker label changes.
type LabelUpdater interface {
	UpdateSpeakerLabels(ctx context.Context, id string, labels map[string]string) error
}

// TranscriptHandler handles transcript-related HTTP requests
type TranscriptHandler struct {
	reader *reader.Reader
	signer DownloadSigner
	labels LabelUpdater
	log    *logrus.Entry
}

// NewTranscriptHandler creates a new transcript handler
func NewTranscriptHandler(rd *reader.Reader, signer DownloadSigner, labels LabelUpdater, log *logrus.Logger) *TranscriptHandler {
	return &TranscriptHandler{
		reader: rd,
		signer: signer,
		labels: labels,
		log:    log.WithField("handler", "transcripts"),
	}
}

// GetDownloadURL handles GET /v1/transcripts/{id}/download?format=markdown|json
func (h *TranscriptHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	transcriptID := mux.Vars(r)["id"]
	requester := middleware.RequesterFrom(r.Context())

	format := models.TranscriptFormat(r.URL.Query().Get("format"))
	if format != models.FormatMarkdown && format != models.FormatJSON {
		writeError(w, h.log, apperr.New(apperr.KindValidation, "format must be markdown or json"))
		return
	}

	transcript, _, err := h.reader.GetTranscript(r.Context(), transcriptID, requester)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	key := transcript.KeyForFormat(format)
	if key == "" {
		writeError(w, h.log, apperr.Newf(apperr.KindNotFound, "no %s export for this transcript", format))
		return
	}

	url, expiresAt, err := h.signer.PresignDownload(r.Context(), key)
	if err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.KindStorage, "failed to sign download url", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":        url,
		"expires_at": expiresAt,
	})
}

// UpdateSpeakerLabels handles PATCH /v1/transcripts/{id}/speakers
func (h *TranscriptHandler) UpdateSpeakerLabels(w http.ResponseWriter, r *http.Request) {
	transcriptID := mux.Vars(r)["id"]
	requester := middleware.RequesterFrom(r.Context())

	if requester == nil {
		writeError(w, h.log, apperr.New(apperr.KindUnauthorized, "identity required to edit speaker labels"))
		return
	}

	var req struct {
		SpeakerLabels map[string]string `json:"speaker_labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if len(req.SpeakerLabels) == 0 {
		writeError(w, h.log, apperr.New(apperr.KindValidation, "speaker_labels must not be empty"))
		return
	}

	transcript, _, err := h.reader.GetTranscript(r.Context(), transcriptID, requester)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.labels.UpdateSpeakerLabels(r.Context(), transcript.ID, req.SpeakerLabels); err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": true})
}
