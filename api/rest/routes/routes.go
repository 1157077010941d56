package routes

import (
	"transcript-coordinator/api/rest/handlers"
	"transcript-coordinator/api/rest/middleware"
	"transcript-coordinator/core/dispatcher"
	"transcript-coordinator/core/reader"
	"transcript-coordinator/core/repository"
	"transcript-coordinator/core/webhook"
	"transcript-coordinator/storage"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Deps are the constructed services the routes are wired to.
type Deps struct {
	Dispatcher      *dispatcher.Dispatcher
	Reader          *reader.Reader
	Receiver        *webhook.Receiver
	Gateway         *storage.ObjectGateway
	Events          *repository.EventRepository
	Transcripts     *repository.TranscriptRepository
	SignatureHeader string
	Log             *logrus.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, deps Deps) {
	jobHandler := handlers.NewJobHandler(deps.Dispatcher, deps.Reader, deps.Events, deps.Log)
	transcriptHandler := handlers.NewTranscriptHandler(deps.Reader, deps.Gateway, deps.Transcripts, deps.Log)
	uploadHandler := handlers.NewUploadHandler(deps.Gateway, deps.Log)
	webhookHandler := handlers.NewWebhookHandler(deps.Receiver, deps.SignatureHeader, deps.Log)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(middleware.Identity)

	// Upload endpoints
	api.HandleFunc("/uploads", uploadHandler.CreateUploadURL).Methods("POST")

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.CreateJob).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")

	// Transcript endpoints
	api.HandleFunc("/transcripts/{id}/download", transcriptHandler.GetDownloadURL).Methods("GET")
	api.HandleFunc("/transcripts/{id}/speakers", transcriptHandler.UpdateSpeakerLabels).Methods("PATCH")

	// Worker callback
	api.HandleFunc("/webhooks/transcription", webhookHandler.Receive).Methods("POST")
}
