package repository

import (
	"context"
	"database/sql"

	"transcript-coordinator/core/apperr"
	"transcript-coordinator/core/models"
)

// EventRepository handles database operations for job events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetJobEvents retrieves status-transition events for a job, newest first.
func (r *EventRepository) GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_id, at, from_status, to_status, reason
		FROM job_events
		WHERE job_id = $1
		ORDER BY at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to fetch job events", err)
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		var fromStatus sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.JobID,
			&event.At,
			&fromStatus,
			&event.ToStatus,
			&event.Reason,
		)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan job event", err)
		}

		if fromStatus.Valid {
			status := models.JobStatus(fromStatus.String)
			event.FromStatus = &status
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to fetch job events", err)
	}

	return events, nil
}

func createJobEventTx(ctx context.Context, tx *sql.Tx, jobID string, fromStatus *models.JobStatus, toStatus models.JobStatus, reason string) error {
	query := `
		INSERT INTO job_events (job_id, at, from_status, to_status, reason)
		VALUES ($1, NOW(), $2, $3, $4)
	`

	var fromStatusStr *string
	if fromStatus != nil {
		s := string(*fromStatus)
		fromStatusStr = &s
	}

	_, err := tx.ExecContext(ctx, query, jobID, fromStatusStr, toStatus, reason)
	return err
}
