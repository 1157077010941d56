package handlers

import (
	"io"
	"net/http"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/webhook"

	"github.com/sirupsen/logrus"
)

// WebhookHandler handles worker status callbacks
type WebhookHandler struct {
	receiver        *webhook.Receiver
	signatureHeader string
	log             *logrus.Entry
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(receiver *webhook.Receiver, signatureHeader string, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		receiver:        receiver,
		signatureHeader: signatureHeader,
		log:             log.WithField("handler", "webhook"),
	}
}

// Receive handles POST /v1/webhooks/transcription. The body must be read
// raw before any parsing: the signature covers the exact bytes on the wire.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.KindValidation, "failed to read body", err))
		return
	}

	signature := r.Header.Get(h.signatureHeader)
	if err := h.receiver.Receive(r.Context(), rawBody, signature); err != nil {
		writeError(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
