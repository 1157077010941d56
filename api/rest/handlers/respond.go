package handlers

import (
	"encoding/json"
	"net/http"

	"transcript-coordinator/core/apperr"

	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an error kind to an HTTP status. Validation and
// authorization messages go to the caller verbatim; storage and dispatch
// details stay in the logs and a generic message crosses the boundary.
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	kind := apperr.KindOf(err)

	var status int
	message := err.Error()

	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindDispatch:
		status = http.StatusBadGateway
		message = "failed to dispatch job to worker"
		log.WithError(err).Error("dispatch failure")
	default:
		status = http.StatusInternalServerError
		message = "internal error"
		log.WithError(err).Error("storage failure")
	}

	writeJSON(w, status, map[string]string{"error": message})
}
