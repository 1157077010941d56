package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-webhook-secret"

type fakeApplier struct {
	reports    []models.WorkerReport
	overwrites []bool
	applied    bool
	err        error
}

func (f *fakeApplier) ApplyWorkerReport(_ context.Context, report models.WorkerReport, overwriteTerminal bool) (bool, error) {
	f.reports = append(f.reports, report)
	f.overwrites = append(f.overwrites, overwriteTerminal)
	return f.applied, f.err
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func doneBody(jobID string) []byte {
	return []byte(fmt.Sprintf(`{"job_id":%q,"status":"done","md_key":"results/a.md","json_key":"results/a.json"}`, jobID))
}

func TestReceiveAppliesDoneReport(t *testing.T) {
	applier := &fakeApplier{applied: true}
	r := New(testSecret, applier, false, testLogger())

	jobID := uuid.New().String()
	body := doneBody(jobID)

	err := r.Receive(context.Background(), body, sign(testSecret, body))
	require.NoError(t, err)

	require.Len(t, applier.reports, 1)
	report := applier.reports[0]
	assert.Equal(t, jobID, report.JobID)
	assert.Equal(t, models.JobStatusDone, report.Status)
	require.True(t, report.HasResultKeys())
	assert.Equal(t, "results/a.md", *report.MarkdownKey)
	assert.Equal(t, "results/a.json", *report.JSONKey)
	assert.False(t, applier.overwrites[0])
}

func TestReceiveAppliesErrorReport(t *testing.T) {
	applier := &fakeApplier{applied: true}
	r := New(testSecret, applier, false, testLogger())

	jobID := uuid.New().String()
	body := []byte(fmt.Sprintf(`{"job_id":%q,"status":"error","error_message":"no audio track"}`, jobID))

	err := r.Receive(context.Background(), body, sign(testSecret, body))
	require.NoError(t, err)

	require.Len(t, applier.reports, 1)
	report := applier.reports[0]
	assert.Equal(t, models.JobStatusError, report.Status)
	require.NotNil(t, report.ErrorMessage)
	assert.Equal(t, "no audio track", *report.ErrorMessage)
	assert.False(t, report.HasResultKeys())
}

func TestReceiveRejectsWrongSecret(t *testing.T) {
	applier := &fakeApplier{applied: true}
	r := New(testSecret, applier, false, testLogger())

	body := doneBody(uuid.New().String())

	err := r.Receive(context.Background(), body, sign("some-other-secret", body))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Empty(t, applier.reports, "a forged report must never reach the store")
}

func TestReceiveRejectsTamperedBody(t *testing.T) {
	applier := &fakeApplier{applied: true}
	r := New(testSecret, applier, false, testLogger())

	jobID := uuid.New().String()
	original := []byte(fmt.Sprintf(`{"job_id":%q,"status":"error"}`, jobID))
	staleSignature := sign(testSecret, original)

	tampered := doneBody(jobID)
	err := r.Receive(context.Background(), tampered, staleSignature)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Empty(t, applier.reports)
}

func TestReceiveRejectsMalformedSignature(t *testing.T) {
	applier := &fakeApplier{applied: true}
	r := New(testSecret, applier, false, testLogger())

	body := doneBody(uuid.New().String())
	for _, sig := range []string{"", "not-hex", "zz" + sign(testSecret, body)[2:]} {
		err := r.Receive(context.Background(), body, sig)
		require.Error(t, err)
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	}
	assert.Empty(t, applier.reports)
}

func TestReceiveRejectsInvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"job_id":`},
		{"missing job id", `{"status":"done"}`},
		{"non-uuid job id", `{"job_id":"42","status":"done"}`},
		{"unknown status", fmt.Sprintf(`{"job_id":%q,"status":"running"}`, uuid.New().String())},
		{"missing status", fmt.Sprintf(`{"job_id":%q}`, uuid.New().String())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &fakeApplier{applied: true}
			r := New(testSecret, applier, false, testLogger())

			body := []byte(tt.body)
			err := r.Receive(context.Background(), body, sign(testSecret, body))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Empty(t, applier.reports)
		})
	}
}

func TestReceiveDuplicateTerminalReportIsIdempotent(t *testing.T) {
	// The store reports "not applied" for a job already terminal; the
	// receiver still acknowledges so the worker stops re-sending.
	applier := &fakeApplier{applied: false}
	r := New(testSecret, applier, false, testLogger())

	body := doneBody(uuid.New().String())
	require.NoError(t, r.Receive(context.Background(), body, sign(testSecret, body)))
	require.NoError(t, r.Receive(context.Background(), body, sign(testSecret, body)))
	assert.Len(t, applier.reports, 2)
}

func TestReceivePropagatesStoreErrors(t *testing.T) {
	applier := &fakeApplier{err: apperr.New(apperr.KindNotFound, "job not found")}
	r := New(testSecret, applier, false, testLogger())

	body := doneBody(uuid.New().String())
	err := r.Receive(context.Background(), body, sign(testSecret, body))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	applier.err = apperr.New(apperr.KindStorage, "db down")
	err = r.Receive(context.Background(), body, sign(testSecret, body))
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
}

func TestReceiveOverwriteFlagReachesStore(t *testing.T) {
	applier := &fakeApplier{applied: true}
	r := New(testSecret, applier, true, testLogger())

	body := doneBody(uuid.New().String())
	require.NoError(t, r.Receive(context.Background(), body, sign(testSecret, body)))
	require.Len(t, applier.overwrites, 1)
	assert.True(t, applier.overwrites[0])
}
