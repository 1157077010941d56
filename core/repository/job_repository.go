package repository

import (
	"context"
	"database/sql"
	"time"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"

	"github.com/google/uuid"
)

// JobRepository handles database operations for jobs
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob inserts a new job row in queued state. The insert is a single
// atomic statement: a failed create leaves nothing queryable.
func (r *JobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	} else if _, err := uuid.Parse(job.ID); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid job id", err)
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO jobs (
			id, owner_id, source_kind, object_key, external_url, media_type,
			language, model_size, diarize, min_speakers, max_speakers,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		job.SourceKind,
		nullIfEmpty(job.ObjectKey),
		nullIfEmpty(job.ExternalURL),
		job.MediaType,
		job.Language,
		job.ModelSize,
		job.Diarize,
		job.MinSpeakers,
		job.MaxSpeakers,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to insert job", err)
	}

	if err := createJobEventTx(ctx, tx, job.ID, nil, job.Status, "job_created"); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to record job event", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to commit job insert", err)
	}
	return nil
}

const jobColumns = `
	id, owner_id, source_kind, object_key, external_url, media_type,
	language, model_size, diarize, min_speakers, max_speakers,
	status, error_message, duration_seconds, size_bytes, created_at, updated_at
`

// GetJob retrieves a job by ID
func (r *JobRepository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "job not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to fetch job", err)
	}
	return job, nil
}

// ListJobsByOwner lists jobs owned by a user, newest first.
func (r *JobRepository) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to list jobs", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to list jobs", err)
	}
	return jobs, nil
}

// ApplyWorkerReport applies a terminal status report from the worker in a
// single transaction: guarded status update, transcript upsert when the
// report is done with both output keys, and a transition event.
//
// The row is locked for the duration so concurrent deliveries for the same
// job serialize. When the job is already terminal and overwriteTerminal is
// false the report is a no-op and (false, nil) is returned; re-delivered
// webhooks are acknowledged without effect.
func (r *JobRepository) ApplyWorkerReport(ctx context.Context, report models.WorkerReport, overwriteTerminal bool) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var current models.JobStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, report.JobID).Scan(&current)
	if err == sql.ErrNoRows {
		return false, apperr.New(apperr.KindNotFound, "job not found")
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "failed to lock job row", err)
	}

	if !models.CanTransition(current, report.Status) && !(overwriteTerminal && current.Terminal()) {
		// Terminal state reached earlier; nothing to do.
		return false, nil
	}

	updateQuery := `
		UPDATE jobs
		SET status = $2,
			error_message = $3,
			duration_seconds = COALESCE($4, duration_seconds),
			size_bytes = COALESCE($5, size_bytes),
			updated_at = NOW()
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, updateQuery,
		report.JobID,
		report.Status,
		report.ErrorMessage,
		report.DurationSeconds,
		report.SizeBytes,
	)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "failed to update job status", err)
	}

	if report.Status == models.JobStatusDone && report.HasResultKeys() {
		if err := upsertTranscriptTx(ctx, tx, report.JobID, *report.MarkdownKey, *report.JSONKey); err != nil {
			return false, apperr.Wrap(apperr.KindStorage, "failed to record transcript", err)
		}
	}

	if err := createJobEventTx(ctx, tx, report.JobID, &current, report.Status, "worker_report"); err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "failed to record job event", err)
	}

	if err := tx.Commit(); err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "failed to commit worker report", err)
	}
	return true, nil
}

// FailQueuedBefore marks jobs still queued before the cutoff as errored.
// Used by the orphan sweeper; the status filter keeps it from ever touching
// a terminal row.
func (r *JobRepository) FailQueuedBefore(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE status = $3 AND created_at < $4
		RETURNING id
	`
	rows, err := tx.QueryContext(ctx, query, models.JobStatusError, reason, models.JobStatusQueued, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "failed to sweep queued jobs", err)
	}

	var swept []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, apperr.Wrap(apperr.KindStorage, "failed to scan swept job", err)
		}
		swept = append(swept, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, apperr.Wrap(apperr.KindStorage, "failed to sweep queued jobs", err)
	}
	rows.Close()

	from := models.JobStatusQueued
	for _, id := range swept {
		if err := createJobEventTx(ctx, tx, id, &from, models.JobStatusError, reason); err != nil {
			return 0, apperr.Wrap(apperr.KindStorage, "failed to record sweep event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "failed to commit sweep", err)
	}
	return int64(len(swept)), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var ownerID sql.NullString
	var objectKey sql.NullString
	var externalURL sql.NullString
	var errorMessage sql.NullString
	var durationSeconds sql.NullFloat64
	var sizeBytes sql.NullInt64

	err := row.Scan(
		&job.ID,
		&ownerID,
		&job.SourceKind,
		&objectKey,
		&externalURL,
		&job.MediaType,
		&job.Language,
		&job.ModelSize,
		&job.Diarize,
		&job.MinSpeakers,
		&job.MaxSpeakers,
		&job.Status,
		&errorMessage,
		&durationSeconds,
		&sizeBytes,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ownerID.Valid {
		job.OwnerID = &ownerID.String
	}
	if objectKey.Valid {
		job.ObjectKey = objectKey.String
	}
	if externalURL.Valid {
		job.ExternalURL = externalURL.String
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	if durationSeconds.Valid {
		job.DurationSeconds = &durationSeconds.Float64
	}
	if sizeBytes.Valid {
		job.SizeBytes = &sizeBytes.Int64
	}

	return &job, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
