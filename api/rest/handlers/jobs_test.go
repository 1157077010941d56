package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"transcript-coordinator/api/rest/middleware"
	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/dispatcher"
	"transcript-coordinator/core/models"
	"transcript-coordinator/core/reader"
	"transcript-coordinator/core/webhook"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the Postgres repositories, with the
// same guarded-transition and upsert semantics.
type memStore struct {
	jobs        map[string]*models.Job
	transcripts map[string]*models.Transcript // keyed by job id
}

func newMemStore() *memStore {
	return &memStore{
		jobs:        make(map[string]*models.Job),
		transcripts: make(map[string]*models.Transcript),
	}
}

func (s *memStore) CreateJob(_ context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = models.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *memStore) ApplyWorkerReport(_ context.Context, report models.WorkerReport, overwriteTerminal bool) (bool, error) {
	job, ok := s.jobs[report.JobID]
	if !ok {
		return false, apperr.New(apperr.KindNotFound, "job not found")
	}
	if !models.CanTransition(job.Status, report.Status) && !(overwriteTerminal && job.Status.Terminal()) {
		return false, nil
	}

	job.Status = report.Status
	job.ErrorMessage = report.ErrorMessage
	job.UpdatedAt = time.Now().UTC()

	if report.Status == models.JobStatusDone && report.HasResultKeys() {
		existing, ok := s.transcripts[report.JobID]
		if !ok {
			existing = &models.Transcript{ID: uuid.New().String(), JobID: report.JobID}
			s.transcripts[report.JobID] = existing
		}
		existing.MarkdownKey = report.MarkdownKey
		existing.JSONKey = report.JSONKey
	}
	return true, nil
}

func (s *memStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "job not found")
}

func (s *memStore) ListJobsByOwner(_ context.Context, ownerID string, limit int) ([]*models.Job, error) {
	var out []*models.Job
	for _, job := range s.jobs {
		if job.OwnerID != nil && *job.OwnerID == ownerID && len(out) < limit {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *memStore) GetTranscriptByJobID(_ context.Context, jobID string) (*models.Transcript, error) {
	if t, ok := s.transcripts[jobID]; ok {
		return t, nil
	}
	return nil, nil
}

func (s *memStore) GetTranscript(_ context.Context, id string) (*models.Transcript, error) {
	for _, t := range s.transcripts {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "transcript not found")
}

type noEvents struct{}

func (noEvents) GetJobEvents(context.Context, string, int) ([]models.JobEvent, error) {
	return nil, nil
}

// newTestAPI wires dispatcher, receiver, and reader over the in-memory store
// behind real routing, with an acknowledging worker.
func newTestAPI(t *testing.T) (*mux.Router, *memStore) {
	t.Helper()
	store := newMemStore()

	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(worker.Close)

	log := testLogger()
	disp := dispatcher.New(store, worker.URL, "media-bucket", 5*time.Second, log)
	receiver := webhook.New(testSecret, store, false, log)
	rd := reader.New(store, log)

	jobHandler := NewJobHandler(disp, rd, noEvents{}, log)
	webhookHandler := NewWebhookHandler(receiver, testSigHeader, log)

	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(middleware.Identity)
	api.HandleFunc("/jobs", jobHandler.CreateJob).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/webhooks/transcription", webhookHandler.Receive).Methods("POST")

	return r, store
}

func do(r *mux.Router, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateThenWebhookScenario(t *testing.T) {
	api, store := newTestAPI(t)

	// Create a job from a YouTube URL.
	rec := do(api, http.MethodPost, "/v1/jobs",
		[]byte(`{"external_url":"https://youtu.be/x","media_type":"audio"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.JobID)
	assert.Equal(t, "queued", created.Status)
	assert.Equal(t, models.JobStatusQueued, store.jobs[created.JobID].Status)

	// Worker reports done.
	body := []byte(fmt.Sprintf(
		`{"job_id":%q,"status":"done","md_key":"results/a.md","json_key":"results/a.json"}`,
		created.JobID,
	))
	rec = do(api, http.MethodPost, "/v1/webhooks/transcription", body,
		map[string]string{testSigHeader: sign(testSecret, body)})
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, models.JobStatusDone, store.jobs[created.JobID].Status)
	transcript := store.transcripts[created.JobID]
	require.NotNil(t, transcript)
	assert.Equal(t, "results/a.md", *transcript.MarkdownKey)
	assert.Equal(t, "results/a.json", *transcript.JSONKey)

	// Polling client sees the terminal state and the nested transcript.
	rec = do(api, http.MethodGet, "/v1/jobs/"+created.JobID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobView map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobView))
	assert.Equal(t, "done", jobView["status"])
	require.Contains(t, jobView, "transcript")
}

func TestDuplicateWebhookCreatesOneTranscript(t *testing.T) {
	api, store := newTestAPI(t)

	rec := do(api, http.MethodPost, "/v1/jobs",
		[]byte(`{"external_url":"https://youtu.be/x","media_type":"audio"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := []byte(fmt.Sprintf(
		`{"job_id":%q,"status":"done","md_key":"results/a.md","json_key":"results/a.json"}`,
		created.JobID,
	))
	headers := map[string]string{testSigHeader: sign(testSecret, body)}

	require.Equal(t, http.StatusNoContent,
		do(api, http.MethodPost, "/v1/webhooks/transcription", body, headers).Code)
	require.Equal(t, http.StatusNoContent,
		do(api, http.MethodPost, "/v1/webhooks/transcription", body, headers).Code)

	assert.Len(t, store.transcripts, 1)
	assert.Equal(t, models.JobStatusDone, store.jobs[created.JobID].Status)
}

func TestLateErrorWebhookCannotRegressDoneJob(t *testing.T) {
	api, store := newTestAPI(t)

	rec := do(api, http.MethodPost, "/v1/jobs",
		[]byte(`{"external_url":"https://youtu.be/x","media_type":"audio"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	doneReport := []byte(fmt.Sprintf(
		`{"job_id":%q,"status":"done","md_key":"results/a.md","json_key":"results/a.json"}`,
		created.JobID,
	))
	require.Equal(t, http.StatusNoContent,
		do(api, http.MethodPost, "/v1/webhooks/transcription", doneReport,
			map[string]string{testSigHeader: sign(testSecret, doneReport)}).Code)

	errorReport := []byte(fmt.Sprintf(`{"job_id":%q,"status":"error","error_message":"late failure"}`, created.JobID))
	require.Equal(t, http.StatusNoContent,
		do(api, http.MethodPost, "/v1/webhooks/transcription", errorReport,
			map[string]string{testSigHeader: sign(testSecret, errorReport)}).Code)

	assert.Equal(t, models.JobStatusDone, store.jobs[created.JobID].Status)
	assert.Nil(t, store.jobs[created.JobID].ErrorMessage)
}

func TestTamperedWebhookLeavesJobQueued(t *testing.T) {
	api, store := newTestAPI(t)

	rec := do(api, http.MethodPost, "/v1/jobs",
		[]byte(`{"external_url":"https://youtu.be/x","media_type":"audio"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	stale := []byte(fmt.Sprintf(`{"job_id":%q,"status":"error"}`, created.JobID))
	tampered := []byte(fmt.Sprintf(
		`{"job_id":%q,"status":"done","md_key":"results/a.md","json_key":"results/a.json"}`,
		created.JobID,
	))

	rec = do(api, http.MethodPost, "/v1/webhooks/transcription", tampered,
		map[string]string{testSigHeader: sign(testSecret, stale)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.JobStatusQueued, store.jobs[created.JobID].Status)
	assert.Empty(t, store.transcripts)
}

func TestCreateValidationReturnsBadRequest(t *testing.T) {
	api, store := newTestAPI(t)

	rec := do(api, http.MethodPost, "/v1/jobs", []byte(`{"media_type":"audio"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.jobs)
}

func TestOwnershipOverHTTP(t *testing.T) {
	api, store := newTestAPI(t)

	rec := do(api, http.MethodPost, "/v1/jobs",
		[]byte(`{"external_url":"https://youtu.be/x","media_type":"audio"}`),
		map[string]string{middleware.IdentityHeader: "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotNil(t, store.jobs[created.JobID].OwnerID)

	// Owner sees it, strangers and anonymous readers do not.
	assert.Equal(t, http.StatusOK,
		do(api, http.MethodGet, "/v1/jobs/"+created.JobID, nil,
			map[string]string{middleware.IdentityHeader: "user-1"}).Code)
	assert.Equal(t, http.StatusForbidden,
		do(api, http.MethodGet, "/v1/jobs/"+created.JobID, nil,
			map[string]string{middleware.IdentityHeader: "user-2"}).Code)
	assert.Equal(t, http.StatusForbidden,
		do(api, http.MethodGet, "/v1/jobs/"+created.JobID, nil, nil).Code)

	// Listing requires identity and is scoped to the owner.
	assert.Equal(t, http.StatusUnauthorized,
		do(api, http.MethodGet, "/v1/jobs", nil, nil).Code)

	rec = do(api, http.MethodGet, "/v1/jobs", nil,
		map[string]string{middleware.IdentityHeader: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Items, 1)
}
