package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"transcript-coordinator/api/rest/routes"
	"transcript-coordinator/config"
	"transcript-coordinator/core/dispatcher"
	"transcript-coordinator/core/models"
	"transcript-coordinator/core/reader"
	"transcript-coordinator/core/repository"
	"transcript-coordinator/core/sweeper"
	"transcript-coordinator/core/webhook"
	"transcript-coordinator/storage"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Initialize database
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	log.Info("database connected")

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	transcriptRepo := repository.NewTranscriptRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// Initialize object store gateway
	ctx := context.Background()
	gateway, err := storage.NewObjectGateway(ctx, cfg.MediaBucket, cfg.UploadURLTTL, cfg.DownloadURLTTL)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize object store gateway")
	}

	// Initialize core services
	disp := dispatcher.New(jobRepo, cfg.WorkerURL, cfg.MediaBucket, cfg.DispatchTimeout, log)
	receiver := webhook.New(cfg.WebhookSecret, jobRepo, cfg.AllowTerminalOverwrite, log)
	rd := reader.New(&readerStore{jobs: jobRepo, transcripts: transcriptRepo}, log)

	// Start orphan sweeper
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sw := sweeper.New(jobRepo, cfg.QueuedJobTTL, cfg.SweepInterval, log)
	go sw.Start(sweepCtx)

	// Setup routes
	r := mux.NewRouter()
	routes.SetupRoutes(r, routes.Deps{
		Dispatcher:      disp,
		Reader:          rd,
		Receiver:        receiver,
		Gateway:         gateway,
		Events:          eventRepo,
		Transcripts:     transcriptRepo,
		SignatureHeader: cfg.SignatureHeader,
		Log:             log,
	})

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		log.WithField("port", cfg.ServerPort).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	if err := server.Shutdown(context.Background()); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}
	log.Info("server exited")
}

// readerStore joins the job and transcript repositories behind the reader's
// store interface.
type readerStore struct {
	jobs        *repository.JobRepository
	transcripts *repository.TranscriptRepository
}

func (s *readerStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

func (s *readerStore) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Job, error) {
	return s.jobs.ListJobsByOwner(ctx, ownerID, limit)
}

func (s *readerStore) GetTranscriptByJobID(ctx context.Context, jobID string) (*models.Transcript, error) {
	return s.transcripts.GetTranscriptByJobID(ctx, jobID)
}

func (s *readerStore) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	return s.transcripts.GetTranscript(ctx, id)
}
