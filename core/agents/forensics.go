package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"secops-orchestrator/core/executor"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/textgen"
)

// EvidenceStore persists forensics material for a job and returns its URI
type EvidenceStore interface {
	SaveEvidence(ctx context.Context, jobID string, details map[string]interface{}) (string, error)
	SaveReport(ctx context.Context, jobID string, report string) (string, error)
}

// ForensicsAgent logs attack details and optionally drafts a report
type ForensicsAgent struct {
	evidence  EvidenceStore
	generator textgen.Generator
	logger    *slog.Logger
}

// NewForensicsAgent creates a new forensics agent. Either collaborator may be nil.
func NewForensicsAgent(evidence EvidenceStore, generator textgen.Generator, logger *slog.Logger) *ForensicsAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForensicsAgent{
		evidence:  evidence,
		generator: generator,
		logger:    logger.With("component", "forensics_agent"),
	}
}

// Execute implements registry.Handler
func (a *ForensicsAgent) Execute(ctx context.Context, params models.Parameters) (models.JobResult, error) {
	p, err := paramsAs[models.ForensicsParams](params)
	if err != nil {
		return nil, err
	}

	job, _ := executor.JobFromContext(ctx)
	result := models.JobResult{
		"status":  "forensics_logged",
		"details": p.Details,
		"message": "Attack details logged for post-mortem analysis.",
	}

	// Evidence persistence is best effort; the job outcome does not depend on it.
	if a.evidence != nil && job.ID != "" {
		uri, err := a.evidence.SaveEvidence(ctx, job.ID, p.Details)
		if err != nil {
			a.logger.Error("failed to save evidence", "job_id", job.ID, "error", err)
		} else {
			result["evidenceUri"] = uri
		}
	}

	if !p.GenerateReport {
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	executor.ReportProgress(ctx, "Generating forensics report.")

	summary, err := json.MarshalIndent(p.Details, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	report, err := textgen.ForensicsReport(ctx, a.generator, string(summary))
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	result["report"] = report

	if a.evidence != nil && job.ID != "" {
		uri, err := a.evidence.SaveReport(ctx, job.ID, report)
		if err != nil {
			a.logger.Error("failed to save report", "job_id", job.ID, "error", err)
		} else {
			result["reportUri"] = uri
		}
	}
	return result, nil
}
