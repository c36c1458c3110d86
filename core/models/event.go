package models

import "time"

// JobEvent represents a state transition event for a job
type JobEvent struct {
	JobID      string     `json:"jobId"`
	Seq        int        `json:"seq"`
	At         time.Time  `json:"at"`
	FromStatus *JobStatus `json:"fromStatus,omitempty"`
	ToStatus   JobStatus  `json:"toStatus"`
	Reason     string     `json:"reason"`
}

// Severity ranks how urgently an alert needs attention
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertEvent is the read-only projection of a job milestone sent to observers
type AlertEvent struct {
	JobID       string    `json:"jobId"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	SourceAgent string    `json:"sourceAgent"`
	Status      JobStatus `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// ArtifactType represents the type of job artifact
type ArtifactType string

const (
	ArtifactTypeEvidence ArtifactType = "evidence"
	ArtifactTypeReport   ArtifactType = "report"
)

// JobArtifact represents an artifact produced by a job (evidence bundle, report)
type JobArtifact struct {
	ID        int64                  `json:"id"`
	JobID     string                 `json:"jobId"`
	Type      ArtifactType           `json:"type"`
	URI       string                 `json:"uri"`
	CreatedAt time.Time              `json:"createdAt"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}
