package repository

import (
	"context"
	"database/sql"

	"secops-orchestrator/core/models"
)

// EventRepository reads archived job transition events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetJobEvents retrieves events for a job, oldest first
func (r *EventRepository) GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	query := r.db.rebind(`
		SELECT job_id, seq, at, from_status, to_status, reason
		FROM job_events
		WHERE job_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		var at string
		var fromStatus sql.NullString
		var toStatus string

		if err := rows.Scan(
			&event.JobID,
			&event.Seq,
			&at,
			&fromStatus,
			&toStatus,
			&event.Reason,
		); err != nil {
			return nil, err
		}

		if event.At, err = parseTime(at); err != nil {
			return nil, err
		}
		event.ToStatus = models.JobStatus(toStatus)
		if fromStatus.Valid {
			status := models.JobStatus(fromStatus.String)
			event.FromStatus = &status
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
