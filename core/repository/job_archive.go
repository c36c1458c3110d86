package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"secops-orchestrator/core/models"
	"secops-orchestrator/core/spec"
)

// JobArchive persists job records and their transitions beyond the
// in-memory retention window
type JobArchive struct {
	db *DB
}

// NewJobArchive creates a new job archive
func NewJobArchive(db *DB) *JobArchive {
	return &JobArchive{db: db}
}

// RecordTransition upserts the record and appends its transition event in one transaction
func (r *JobArchive) RecordTransition(ctx context.Context, job *models.JobRecord, event models.JobEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.upsertJobTx(ctx, tx, job); err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	if err := r.createJobEventTx(ctx, tx, event); err != nil {
		return fmt.Errorf("saving event %s/%d: %w", event.JobID, event.Seq, err)
	}

	return tx.Commit()
}

func (r *JobArchive) upsertJobTx(ctx context.Context, tx *sql.Tx, job *models.JobRecord) error {
	query := r.db.rebind(`
		INSERT INTO jobs (
			id, agent_kind, status, submitted_by, parameters_json, result_json,
			error_detail, submitted_at, started_at, finished_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			result_json = excluded.result_json,
			error_detail = excluded.error_detail,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at
	`)

	paramsJSON, err := json.Marshal(job.Request.Parameters)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}

	var resultJSON sql.NullString
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = tx.ExecContext(ctx, query,
		job.ID,
		string(job.Request.AgentKind),
		string(job.Status),
		job.Request.SubmittedBy,
		string(paramsJSON),
		resultJSON,
		job.ErrorDetail,
		formatTime(job.Request.SubmittedAt),
		formatNullTime(job.StartedAt),
		formatNullTime(job.FinishedAt),
		formatTime(job.UpdatedAt),
	)
	return err
}

func (r *JobArchive) createJobEventTx(ctx context.Context, tx *sql.Tx, event models.JobEvent) error {
	query := r.db.rebind(`
		INSERT INTO job_events (job_id, seq, at, from_status, to_status, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, seq) DO NOTHING
	`)

	var fromStatus sql.NullString
	if event.FromStatus != nil {
		fromStatus = sql.NullString{String: string(*event.FromStatus), Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		event.JobID,
		event.Seq,
		formatTime(event.At),
		fromStatus,
		string(event.ToStatus),
		event.Reason,
	)
	return err
}

// GetJob retrieves an archived job by ID
func (r *JobArchive) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	query := r.db.rebind(`
		SELECT id, agent_kind, status, submitted_by, parameters_json, result_json,
			error_detail, submitted_at, started_at, finished_at, updated_at
		FROM jobs
		WHERE id = ?
	`)

	var (
		job         models.JobRecord
		kind        string
		status      string
		paramsJSON  string
		resultJSON  sql.NullString
		errorDetail sql.NullString
		submittedAt string
		startedAt   sql.NullString
		finishedAt  sql.NullString
		updatedAt   string
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&kind,
		&status,
		&job.Request.SubmittedBy,
		&paramsJSON,
		&resultJSON,
		&errorDetail,
		&submittedAt,
		&startedAt,
		&finishedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	job.Request.AgentKind = models.AgentKind(kind)
	job.Status = models.JobStatus(status)
	job.ErrorDetail = errorDetail.String

	params, err := spec.ParseParameters(job.Request.AgentKind, []byte(paramsJSON))
	if err != nil {
		return nil, fmt.Errorf("decoding parameters of job %s: %w", id, err)
	}
	job.Request.Parameters = params

	if resultJSON.Valid {
		if err := json.Unmarshal([]byte(resultJSON.String), &job.Result); err != nil {
			return nil, fmt.Errorf("decoding result of job %s: %w", id, err)
		}
	}

	if job.Request.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if job.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, err
	}

	return &job, nil
}

// GetJobEvents retrieves the archived transitions of a job, oldest first
func (r *JobArchive) GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	return NewEventRepository(r.db).GetJobEvents(ctx, jobID, limit)
}
