package events

import (
	"testing"
	"time"

	"secops-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		kind   models.AgentKind
		status models.JobStatus
		want   models.Severity
	}{
		{models.AgentRecon, models.JobStatusSucceeded, models.SeverityInfo},
		{models.AgentIncidentResponse, models.JobStatusSucceeded, models.SeverityInfo},
		{models.AgentRecon, models.JobStatusCancelled, models.SeverityLow},
		{models.AgentRecon, models.JobStatusFailed, models.SeverityMedium},
		{models.AgentThreatDetect, models.JobStatusTimedOut, models.SeverityHigh},
		{models.AgentIncidentResponse, models.JobStatusFailed, models.SeverityCritical},
		{models.AgentForensics, models.JobStatusTimedOut, models.SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityFor(tt.kind, tt.status))
		})
	}
}

func TestTerminalAlert(t *testing.T) {
	finished := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)

	t.Run("success uses the result message", func(t *testing.T) {
		ev := TerminalAlert(&models.JobRecord{
			ID:         "job-1",
			Request:    models.JobRequest{AgentKind: models.AgentRecon, Parameters: models.ReconParams{IPRange: "10.0.0.0/24"}},
			Status:     models.JobStatusSucceeded,
			Result:     models.JobResult{"message": "Network scan of 10.0.0.0/24 completed: 2 hosts found."},
			FinishedAt: &finished,
		})
		assert.Equal(t, "job-1", ev.JobID)
		assert.Equal(t, "Recon Agent", ev.SourceAgent)
		assert.Equal(t, "Network scan of 10.0.0.0/24 completed: 2 hosts found.", ev.Description)
		assert.Equal(t, models.SeverityInfo, ev.Severity)
		assert.Equal(t, finished, ev.Timestamp)
	})

	t.Run("failure includes subject and error", func(t *testing.T) {
		ev := TerminalAlert(&models.JobRecord{
			ID:          "job-2",
			Request:     models.JobRequest{AgentKind: models.AgentIncidentResponse, Parameters: models.IncidentResponseParams{Target: "10.0.0.5"}},
			Status:      models.JobStatusFailed,
			ErrorDetail: "firewall unreachable",
			FinishedAt:  &finished,
		})
		assert.Equal(t, "Incident Response Agent failed for 10.0.0.5: firewall unreachable", ev.Description)
		assert.Equal(t, models.SeverityCritical, ev.Severity)
		assert.Equal(t, models.JobStatusFailed, ev.Status)
	})

	t.Run("timeout", func(t *testing.T) {
		ev := TerminalAlert(&models.JobRecord{
			ID:         "job-3",
			Request:    models.JobRequest{AgentKind: models.AgentThreatDetect, Parameters: models.ThreatDetectParams{Logs: make([]models.LogRecord, 4)}},
			Status:     models.JobStatusTimedOut,
			FinishedAt: &finished,
		})
		assert.Equal(t, "Threat Detection Agent timed out on 4 log records", ev.Description)
	})
}

func TestProgressAlert(t *testing.T) {
	ev := ProgressAlert("job-1", models.AgentRecon, "Network scan initiated for 10.0.0.0/24.")
	assert.Equal(t, models.SeverityInfo, ev.Severity)
	assert.Equal(t, models.JobStatusRunning, ev.Status)
	assert.Equal(t, "Recon Agent", ev.SourceAgent)
	assert.False(t, ev.Timestamp.IsZero())
}
