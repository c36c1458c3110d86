package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"secops-orchestrator/core/events"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/monitoring"
	"secops-orchestrator/core/registry"
	"secops-orchestrator/core/repository"
)

// DefaultGracePeriod is how long a cancelled handler gets to unwind before
// the runner forces the terminal state
const DefaultGracePeriod = 2 * time.Second

var (
	errCancelled = errors.New("cancelled by request")
	errTimedOut  = errors.New("execution timed out")
	errShutdown  = errors.New("orchestrator shutting down")
)

// Store is the part of the job store the runner drives
type Store interface {
	Update(id string, mut repository.Mutation) (*models.JobRecord, error)
	Events(id string) ([]models.JobEvent, error)
}

// Publisher receives alerts for job milestones
type Publisher interface {
	Publish(ev models.AlertEvent)
}

// Archiver persists transitions outside the in-memory store
type Archiver interface {
	RecordTransition(ctx context.Context, job *models.JobRecord, event models.JobEvent) error
}

type execution struct {
	kind    models.AgentKind
	timeout time.Duration
	cancel  context.CancelCauseFunc
	done    chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	finished  bool
}

type outcome struct {
	result models.JobResult
	err    error
}

// Runner drives jobs from queued to a terminal state. Each job runs in its
// own goroutine and its handler in another, so a handler that ignores
// cancellation cannot hold a job past timeout plus grace.
type Runner struct {
	store     Store
	publisher Publisher
	archive   Archiver
	metrics   *monitoring.Metrics
	grace     time.Duration
	logger    *slog.Logger

	baseCtx context.Context
	stop    context.CancelCauseFunc

	mu       sync.Mutex
	inflight map[string]*execution
	wg       sync.WaitGroup
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithGracePeriod sets how long cancelled handlers get to unwind
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithArchive persists every transition to an archive
func WithArchive(a Archiver) RunnerOption {
	return func(r *Runner) { r.archive = a }
}

// WithMetrics records job outcomes
func WithMetrics(m *monitoring.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the runner's logger
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a new execution runner
func NewRunner(store Store, publisher Publisher, opts ...RunnerOption) *Runner {
	baseCtx, stop := context.WithCancelCause(context.Background())
	r := &Runner{
		store:     store,
		publisher: publisher,
		grace:     DefaultGracePeriod,
		logger:    slog.Default(),
		baseCtx:   baseCtx,
		stop:      stop,
		inflight:  make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runner")
	return r
}

// GracePeriod returns the configured unwind grace period
func (r *Runner) GracePeriod() time.Duration {
	return r.grace
}

// Start launches a queued job. The job is cancellable as soon as Start
// returns; onDone runs once the job is terminal.
func (r *Runner) Start(job *models.JobRecord, entry registry.Entry, onDone func()) {
	ctx, cancel := context.WithCancelCause(r.baseCtx)
	exec := &execution{
		kind:    entry.Kind,
		timeout: entry.Policy.Timeout,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.inflight[job.ID] = exec
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(exec.done)
		defer r.forget(job.ID)
		if onDone != nil {
			defer onDone()
		}
		defer cancel(nil)

		r.record(job)
		r.run(ctx, exec, job, entry)
	}()
}

func (r *Runner) run(ctx context.Context, exec *execution, job *models.JobRecord, entry registry.Entry) {
	running, err := r.store.Update(job.ID, repository.Mutation{
		Status: models.JobStatusRunning,
		Reason: "execution_started",
	})
	if err != nil {
		r.logger.Error("failed to start job", "job_id", job.ID, "error", err)
		return
	}
	r.record(running)

	exec.mu.Lock()
	exec.startedAt = *running.StartedAt
	exec.mu.Unlock()

	r.logger.Info("job running", "job_id", job.ID, "agent", entry.Kind, "timeout", entry.Policy.Timeout)

	hctx := WithJob(ctx, JobInfo{ID: job.ID, Kind: entry.Kind})
	hctx = withProgress(hctx, func(description string) {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		if exec.finished {
			return
		}
		r.publisher.Publish(events.ProgressAlert(job.ID, entry.Kind, description))
	})

	results := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				results <- outcome{err: fmt.Errorf("handler panic: %v", p)}
			}
		}()
		res, err := entry.Handler.Execute(hctx, job.Request.Parameters)
		results <- outcome{result: res, err: err}
	}()

	var timeout <-chan time.Time
	if entry.Policy.Timeout > 0 {
		timer := time.NewTimer(entry.Policy.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var mut repository.Mutation
	select {
	case out := <-results:
		mut = outcomeMutation(ctx, out)
	case <-timeout:
		exec.cancel(errTimedOut)
		r.awaitUnwind(job.ID, results)
		mut = repository.Mutation{
			Status:      models.JobStatusTimedOut,
			ErrorDetail: fmt.Sprintf("exceeded timeout of %s", entry.Policy.Timeout),
			Reason:      "timeout",
		}
	case <-ctx.Done():
		r.awaitUnwind(job.ID, results)
		mut = cancelMutation(context.Cause(ctx))
	}

	exec.mu.Lock()
	exec.finished = true
	exec.mu.Unlock()

	r.finish(job.ID, mut)
}

// awaitUnwind gives a cancelled handler the grace period to return
func (r *Runner) awaitUnwind(jobID string, results <-chan outcome) {
	select {
	case <-results:
	case <-time.After(r.grace):
		r.logger.Warn("handler ignored cancellation, forcing terminal state", "job_id", jobID, "grace", r.grace)
	}
}

func outcomeMutation(ctx context.Context, out outcome) repository.Mutation {
	if out.err == nil {
		result := out.result
		if result == nil {
			result = models.JobResult{}
		}
		return repository.Mutation{
			Status: models.JobStatusSucceeded,
			Result: result,
			Reason: "execution_succeeded",
		}
	}

	// The handler may return ctx.Err() right as the job is cancelled.
	if cause := context.Cause(ctx); errors.Is(cause, errCancelled) || errors.Is(cause, errShutdown) {
		return cancelMutation(cause)
	}

	return repository.Mutation{
		Status:      models.JobStatusFailed,
		ErrorDetail: out.err.Error(),
		Reason:      "execution_failed",
	}
}

func cancelMutation(cause error) repository.Mutation {
	detail := errCancelled.Error()
	reason := "user_cancelled"
	if errors.Is(cause, errShutdown) {
		detail = errShutdown.Error()
		reason = "shutdown"
	}
	return repository.Mutation{
		Status:      models.JobStatusCancelled,
		ErrorDetail: detail,
		Reason:      reason,
	}
}

func (r *Runner) finish(jobID string, mut repository.Mutation) {
	job, err := r.store.Update(jobID, mut)
	if err != nil {
		r.logger.Error("failed to record terminal state", "job_id", jobID, "status", mut.Status, "error", err)
		return
	}
	r.record(job)

	r.metrics.JobFinished(job.Request.AgentKind, job.Status, job.Duration())
	r.publisher.Publish(events.TerminalAlert(job))

	attrs := []any{"job_id", jobID, "agent", job.Request.AgentKind, "status", job.Status, "duration", job.Duration()}
	if job.Status == models.JobStatusSucceeded {
		r.logger.Info("job finished", attrs...)
	} else {
		r.logger.Warn("job finished", append(attrs, "error", job.ErrorDetail)...)
	}
}

// record archives the latest transition of job. Archive failures never
// affect the job outcome.
func (r *Runner) record(job *models.JobRecord) {
	if r.archive == nil {
		return
	}
	evs, err := r.store.Events(job.ID)
	if err != nil || len(evs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.archive.RecordTransition(ctx, job, evs[len(evs)-1]); err != nil {
		r.logger.Error("failed to archive transition", "job_id", job.ID, "status", job.Status, "error", err)
	}
}

func (r *Runner) forget(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, jobID)
}

// Cancel signals a job's handler to stop. It returns a channel closed once
// the job is terminal, or false if the runner is not driving the job.
func (r *Runner) Cancel(jobID string) (<-chan struct{}, bool) {
	r.mu.Lock()
	exec, ok := r.inflight[jobID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	exec.cancel(errCancelled)
	return exec.done, true
}

// InFlight returns the jobs currently being driven
func (r *Runner) InFlight() []models.InFlightJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]models.InFlightJob, 0, len(r.inflight))
	for id, exec := range r.inflight {
		exec.mu.Lock()
		jobs = append(jobs, models.InFlightJob{
			ID:        id,
			Kind:      exec.kind,
			StartedAt: exec.startedAt,
			Timeout:   exec.timeout,
		})
		exec.mu.Unlock()
	}
	return jobs
}

// Shutdown cancels every in-flight job and waits for them to become terminal
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stop(errShutdown)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
