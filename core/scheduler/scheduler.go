package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"secops-orchestrator/core/executor"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/monitoring"
	"secops-orchestrator/core/registry"
	"secops-orchestrator/core/repository"
)

// ErrShuttingDown is returned by Submit once Shutdown has begun
var ErrShuttingDown = errors.New("dispatcher shutting down")

// Dispatcher is the single entry point for submitting operations. It owns
// admission control; execution is delegated to the runner.
type Dispatcher struct {
	registry *registry.Registry
	store    *repository.JobStore
	runner   *executor.Runner
	gate     *admissionGate
	metrics  *monitoring.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithMetrics records admissions and rejections
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the dispatcher's logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(reg *registry.Registry, store *repository.JobStore, runner *executor.Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		store:    store,
		runner:   runner,
		gate:     newAdmissionGate(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Submit admits a job and starts it asynchronously. The returned record is
// always queued; callers follow progress through Get or the alert feed.
// Rejected submissions create no record.
func (d *Dispatcher) Submit(ctx context.Context, kind models.AgentKind, params models.Parameters, submittedBy string) (*models.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrShuttingDown
	}

	entry, err := d.registry.Resolve(kind)
	if err != nil {
		d.metrics.AdmissionRejected(kind, "unknown_agent")
		return nil, err
	}

	if err := validate(kind, params); err != nil {
		d.metrics.AdmissionRejected(kind, "invalid_parameters")
		return nil, err
	}

	if !d.gate.tryAcquire(kind, entry.Policy.MaxConcurrent) {
		d.metrics.AdmissionRejected(kind, "throttled")
		d.logger.Info("submission throttled", "agent", kind, "max_concurrent", entry.Policy.MaxConcurrent, "submitted_by", submittedBy)
		return nil, fmt.Errorf("%w: %s allows %d concurrent jobs", models.ErrThrottled, kind, entry.Policy.MaxConcurrent)
	}

	job, err := d.store.Create(models.JobRequest{
		AgentKind:   kind,
		Parameters:  params,
		SubmittedBy: submittedBy,
		SubmittedAt: d.now().UTC(),
	})
	if err != nil {
		d.gate.release(kind)
		d.metrics.AdmissionRejected(kind, "capacity_exceeded")
		d.logger.Warn("job store rejected submission", "agent", kind, "error", err)
		return nil, err
	}

	d.metrics.JobSubmitted(kind)
	d.logger.Info("job submitted", "job_id", job.ID, "agent", kind, "submitted_by", submittedBy)

	d.runner.Start(job, entry, func() { d.gate.release(kind) })
	return job, nil
}

func validate(kind models.AgentKind, params models.Parameters) error {
	if params == nil {
		return fmt.Errorf("%w: parameters are required", models.ErrInvalidParameters)
	}
	if params.Kind() != kind {
		return fmt.Errorf("%w: %s parameters submitted to %s", models.ErrInvalidParameters, params.Kind(), kind)
	}
	return params.Validate()
}

// Cancel stops a non-terminal job and waits until it is terminal. Cancelling
// a terminal job returns it unchanged.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (*models.JobRecord, error) {
	job, err := d.store.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	if done, ok := d.runner.Cancel(id); ok {
		d.logger.Info("cancelling job", "job_id", id)
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.store.Get(id)
}

// Get returns the current record of a job
func (d *Dispatcher) Get(id string) (*models.JobRecord, error) {
	return d.store.Get(id)
}

// List returns records matching the filter, newest first
func (d *Dispatcher) List(f repository.Filter) []*models.JobRecord {
	return d.store.List(f)
}

// Events returns the status transitions of a job
func (d *Dispatcher) Events(id string) ([]models.JobEvent, error) {
	return d.store.Events(id)
}

// AgentStatus summarises one registered agent for the dashboard
type AgentStatus struct {
	Kind          models.AgentKind
	Policy        registry.Policy
	Active        int
	LastJobID     string
	LastStatus    models.JobStatus
	LastActivity  *time.Time
	TotalRetained int
}

// Agents reports every registered agent with its current load
func (d *Dispatcher) Agents() []AgentStatus {
	entries := d.registry.Entries()
	statuses := make([]AgentStatus, 0, len(entries))
	for _, e := range entries {
		st := AgentStatus{
			Kind:   e.Kind,
			Policy: e.Policy,
			Active: d.gate.count(e.Kind),
		}
		jobs := d.store.ListByAgent(e.Kind)
		st.TotalRetained = len(jobs)
		if n := len(jobs); n > 0 {
			last := jobs[n-1]
			st.LastJobID = last.ID
			st.LastStatus = last.Status
			at := last.UpdatedAt
			st.LastActivity = &at
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Shutdown stops admitting jobs, cancels in-flight ones and waits for them
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("shutting down dispatcher")
	return d.runner.Shutdown(ctx)
}
