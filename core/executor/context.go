package executor

import (
	"context"

	"secops-orchestrator/core/models"
)

// JobInfo identifies the job a handler is executing
type JobInfo struct {
	ID   string
	Kind models.AgentKind
}

type jobInfoKey struct{}

type progressKey struct{}

// WithJob attaches job identity to ctx
func WithJob(ctx context.Context, info JobInfo) context.Context {
	return context.WithValue(ctx, jobInfoKey{}, info)
}

// JobFromContext returns the job a handler is running for, if any
func JobFromContext(ctx context.Context) (JobInfo, bool) {
	info, ok := ctx.Value(jobInfoKey{}).(JobInfo)
	return info, ok
}

func withProgress(ctx context.Context, report func(string)) context.Context {
	return context.WithValue(ctx, progressKey{}, report)
}

// ReportProgress publishes an informational milestone for the running job.
// It is a no-op outside a runner-managed context or after the job finished.
func ReportProgress(ctx context.Context, description string) {
	if report, ok := ctx.Value(progressKey{}).(func(string)); ok {
		report(description)
	}
}
