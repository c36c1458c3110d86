package repository

import (
	"context"
	"encoding/json"
	"time"

	"secops-orchestrator/core/models"
)

// ArtifactRepository handles database operations for job artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetJobArtifacts retrieves artifacts for a job, optionally filtered by type
func (r *ArtifactRepository) GetJobArtifacts(ctx context.Context, jobID string, artifactType *models.ArtifactType) ([]models.JobArtifact, error) {
	query := `
		SELECT id, job_id, type, uri, meta_json, created_at
		FROM job_artifacts
		WHERE job_id = ?
	`
	args := []interface{}{jobID}

	if artifactType != nil {
		query += " AND type = ?"
		args = append(args, string(*artifactType))
	}

	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.JobArtifact
	for rows.Next() {
		var artifact models.JobArtifact
		var artifactTypeStr string
		var metaJSON string
		var createdAt string

		if err := rows.Scan(
			&artifact.ID,
			&artifact.JobID,
			&artifactTypeStr,
			&artifact.URI,
			&metaJSON,
			&createdAt,
		); err != nil {
			return nil, err
		}

		artifact.Type = models.ArtifactType(artifactTypeStr)
		if artifact.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &artifact.Meta); err != nil {
				return nil, err
			}
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// CreateArtifact creates a new artifact record and returns its id
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, jobID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) (int64, error) {
	metaJSON := "{}"
	if meta != nil {
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return 0, err
		}
		metaJSON = string(metaBytes)
	}

	query := r.db.rebind(`
		INSERT INTO job_artifacts (job_id, type, uri, meta_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	err := r.db.QueryRowContext(ctx, query, jobID, string(artifactType), uri, metaJSON, formatTime(time.Now())).Scan(&id)
	return id, err
}
