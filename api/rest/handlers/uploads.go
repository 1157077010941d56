package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"transcript-coordinator/core/apperr"

	"github.com/sirupsen/logrus"
)

// UploadSigner issues upload keys and time-boxed PUT URLs.
type UploadSigner interface {
	NewUploadKey(filename string) string
	PresignUpload(ctx context.Context, key string) (string, time.Time, error)
}

// UploadHandler handles upload URL requests
type UploadHandler struct {
	signer UploadSigner
	log    *logrus.Entry
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(signer UploadSigner, log *logrus.Logger) *UploadHandler {
	return &UploadHandler{
		signer: signer,
		log:    log.WithField("handler", "uploads"),
	}
}

// CreateUploadURL handles POST /v1/uploads. The returned object key is what
// the client passes back as upload_reference when creating the job.
func (h *UploadHandler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if req.Filename == "" {
		writeError(w, h.log, apperr.New(apperr.KindValidation, "filename is required"))
		return
	}

	key := h.signer.NewUploadKey(req.Filename)
	url, expiresAt, err := h.signer.PresignUpload(r.Context(), key)
	if err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.KindStorage, "failed to sign upload url", err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"object_key": key,
		"upload_url": url,
		"expires_at": expiresAt,
	})
}
