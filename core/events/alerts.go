package events

import (
	"fmt"
	"time"

	"secops-orchestrator/core/models"
)

// failureSeverity scales with the operational risk of the agent that failed
var failureSeverity = map[models.AgentKind]models.Severity{
	models.AgentRecon:            models.SeverityMedium,
	models.AgentForensics:        models.SeverityMedium,
	models.AgentThreatDetect:     models.SeverityHigh,
	models.AgentIncidentResponse: models.SeverityCritical,
}

// SeverityFor maps a job outcome onto an alert severity
func SeverityFor(kind models.AgentKind, status models.JobStatus) models.Severity {
	switch status {
	case models.JobStatusSucceeded, models.JobStatusQueued, models.JobStatusRunning:
		return models.SeverityInfo
	case models.JobStatusCancelled:
		return models.SeverityLow
	case models.JobStatusFailed, models.JobStatusTimedOut:
		if sev, ok := failureSeverity[kind]; ok {
			return sev
		}
		return models.SeverityHigh
	default:
		return models.SeverityInfo
	}
}

// TerminalAlert builds the alert published when a job reaches a terminal state
func TerminalAlert(job *models.JobRecord) models.AlertEvent {
	kind := job.Request.AgentKind
	return models.AlertEvent{
		JobID:       job.ID,
		Description: describe(job),
		Severity:    SeverityFor(kind, job.Status),
		SourceAgent: kind.DisplayName(),
		Status:      job.Status,
		Timestamp:   timestamp(job),
	}
}

// ProgressAlert builds an informational alert for a running job milestone
func ProgressAlert(jobID string, kind models.AgentKind, description string) models.AlertEvent {
	return models.AlertEvent{
		JobID:       jobID,
		Description: description,
		Severity:    models.SeverityInfo,
		SourceAgent: kind.DisplayName(),
		Status:      models.JobStatusRunning,
		Timestamp:   time.Now().UTC(),
	}
}

func timestamp(job *models.JobRecord) time.Time {
	if job.FinishedAt != nil {
		return job.FinishedAt.UTC()
	}
	return job.UpdatedAt.UTC()
}

func describe(job *models.JobRecord) string {
	subject := subjectOf(job.Request.Parameters)

	switch job.Status {
	case models.JobStatusSucceeded:
		if msg, ok := job.Result["message"].(string); ok && msg != "" {
			return msg
		}
		return fmt.Sprintf("%s completed %s", job.Request.AgentKind.DisplayName(), subject)
	case models.JobStatusFailed:
		return fmt.Sprintf("%s failed %s: %s", job.Request.AgentKind.DisplayName(), subject, job.ErrorDetail)
	case models.JobStatusTimedOut:
		return fmt.Sprintf("%s timed out %s", job.Request.AgentKind.DisplayName(), subject)
	case models.JobStatusCancelled:
		return fmt.Sprintf("%s cancelled %s", job.Request.AgentKind.DisplayName(), subject)
	default:
		return fmt.Sprintf("%s %s %s", job.Request.AgentKind.DisplayName(), job.Status, subject)
	}
}

func subjectOf(params models.Parameters) string {
	switch p := params.(type) {
	case models.ReconParams:
		return "for " + p.IPRange
	case models.ThreatDetectParams:
		return fmt.Sprintf("on %d log records", len(p.Logs))
	case models.IncidentResponseParams:
		return "for " + p.Target
	case models.ForensicsParams:
		return "for incident details"
	default:
		return ""
	}
}
