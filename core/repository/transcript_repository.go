package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"

	"github.com/google/uuid"
)

// TranscriptRepository handles database operations for transcripts
type TranscriptRepository struct {
	db *DB
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

const transcriptColumns = `
	id, job_id, markdown_key, json_key, word_timestamps, speaker_labels,
	created_at, updated_at
`

// GetTranscript retrieves a transcript by ID
func (r *TranscriptRepository) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	query := `SELECT ` + transcriptColumns + ` FROM transcripts WHERE id = $1`
	t, err := scanTranscript(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "transcript not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to fetch transcript", err)
	}
	return t, nil
}

// GetTranscriptByJobID retrieves the transcript for a job, or nil if the job
// has none yet.
func (r *TranscriptRepository) GetTranscriptByJobID(ctx context.Context, jobID string) (*models.Transcript, error) {
	query := `SELECT ` + transcriptColumns + ` FROM transcripts WHERE job_id = $1`
	t, err := scanTranscript(r.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to fetch transcript", err)
	}
	return t, nil
}

// UpdateSpeakerLabels replaces the speaker label mapping on a transcript.
func (r *TranscriptRepository) UpdateSpeakerLabels(ctx context.Context, id string, labels map[string]string) error {
	data, err := json.Marshal(labels)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid speaker labels", err)
	}

	query := `UPDATE transcripts SET speaker_labels = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, data)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to update speaker labels", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.KindNotFound, "transcript not found")
	}
	return nil
}

// upsertTranscriptTx records the worker's output keys for a job. The unique
// job_id column makes a replayed done report update in place instead of
// inserting a second row.
func upsertTranscriptTx(ctx context.Context, tx *sql.Tx, jobID, markdownKey, jsonKey string) error {
	query := `
		INSERT INTO transcripts (id, job_id, markdown_key, json_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET markdown_key = EXCLUDED.markdown_key,
			json_key = EXCLUDED.json_key,
			updated_at = NOW()
	`
	_, err := tx.ExecContext(ctx, query, uuid.New().String(), jobID, markdownKey, jsonKey)
	return err
}

func scanTranscript(row rowScanner) (*models.Transcript, error) {
	var t models.Transcript
	var markdownKey sql.NullString
	var jsonKey sql.NullString
	var wordTimestamps []byte
	var speakerLabels []byte

	err := row.Scan(
		&t.ID,
		&t.JobID,
		&markdownKey,
		&jsonKey,
		&wordTimestamps,
		&speakerLabels,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if markdownKey.Valid {
		t.MarkdownKey = &markdownKey.String
	}
	if jsonKey.Valid {
		t.JSONKey = &jsonKey.String
	}
	if len(wordTimestamps) > 0 {
		json.Unmarshal(wordTimestamps, &t.WordTimestamps)
	}
	if len(speakerLabels) > 0 {
		json.Unmarshal(speakerLabels, &t.SpeakerLabels)
	}

	return &t, nil
}
