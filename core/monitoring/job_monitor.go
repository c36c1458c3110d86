package monitoring

import (
	"context"
	"log/slog"
	"time"

	"secops-orchestrator/core/models"
)

// DefaultMonitorInterval is how often the monitor samples in-flight jobs
const DefaultMonitorInterval = 15 * time.Second

// JobTracker exposes the jobs currently being executed
type JobTracker interface {
	InFlight() []models.InFlightJob
	GracePeriod() time.Duration
}

// StoreSizer reports how many job records are retained
type StoreSizer interface {
	Len() int
}

// JobMonitor periodically checks in-flight jobs for overruns and reports
// store size. A job past timeout plus grace means a terminal transition was lost.
type JobMonitor struct {
	tracker  JobTracker
	store    StoreSizer
	metrics  *Metrics
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(tracker JobTracker, store StoreSizer, metrics *Metrics, interval time.Duration, logger *slog.Logger) *JobMonitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobMonitor{
		tracker:  tracker,
		store:    store,
		metrics:  metrics,
		interval: interval,
		logger:   logger.With("component", "job_monitor"),
		now:      time.Now,
	}
}

// Start runs the monitoring loop until ctx is cancelled
func (jm *JobMonitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			jm.Check()
		}
	}
}

// Check samples the tracker once and returns the ids of overrunning jobs
func (jm *JobMonitor) Check() []string {
	now := jm.now()
	grace := jm.tracker.GracePeriod()

	var stuck []string
	for _, job := range jm.tracker.InFlight() {
		if job.StartedAt.IsZero() || job.Timeout <= 0 {
			continue
		}
		if deadline := job.StartedAt.Add(job.Timeout + grace); now.After(deadline) {
			stuck = append(stuck, job.ID)
			jm.logger.Warn("job overran its deadline", "job_id", job.ID, "agent", job.Kind, "started_at", job.StartedAt, "overrun", now.Sub(deadline))
		}
	}

	jm.metrics.SetStuckJobs(len(stuck))
	if jm.store != nil {
		jm.metrics.SetStoreRecords(jm.store.Len())
	}
	return stuck
}
