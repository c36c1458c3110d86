package monitoring

import (
	"time"

	"secops-orchestrator/core/models"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "secops"

// Metrics exposes Prometheus collectors that report orchestrator activity.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	jobsSubmitted     *prometheus.CounterVec
	admissionRejected *prometheus.CounterVec
	jobsFinished      *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobsActive        *prometheus.GaugeVec
	alertsDropped     prometheus.Counter
	storeRecords      prometheus.Gauge
	stuckJobs         prometheus.Gauge
}

// NewMetrics constructs the collectors and registers them with reg.
// Registration errors panic, surfacing duplicate wiring at startup.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "jobs_submitted_total",
			Help:      "Jobs admitted by the dispatcher.",
		}, []string{"agent"}),
		admissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "admission_rejections_total",
			Help:      "Submissions rejected before a job record was created.",
		}, []string{"agent", "reason"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state.",
		}, []string{"agent", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "job_duration_seconds",
			Help:      "Time from running to terminal state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent", "status"}),
		jobsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "jobs_active",
			Help:      "Jobs currently queued or running.",
		}, []string{"agent"}),
		alertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "alerts_dropped_total",
			Help:      "Alerts discarded for slow subscribers.",
		}),
		storeRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records",
			Help:      "Job records currently retained in memory.",
		}),
		stuckJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "stuck_jobs",
			Help:      "Running jobs past their timeout plus grace period.",
		}),
	}

	reg.MustRegister(
		m.jobsSubmitted,
		m.admissionRejected,
		m.jobsFinished,
		m.jobDuration,
		m.jobsActive,
		m.alertsDropped,
		m.storeRecords,
		m.stuckJobs,
	)
	return m
}

// JobSubmitted records an admitted job
func (m *Metrics) JobSubmitted(kind models.AgentKind) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(string(kind)).Inc()
	m.jobsActive.WithLabelValues(string(kind)).Inc()
}

// AdmissionRejected records a submission refused with the given reason
func (m *Metrics) AdmissionRejected(kind models.AgentKind, reason string) {
	if m == nil {
		return
	}
	m.admissionRejected.WithLabelValues(string(kind), reason).Inc()
}

// JobFinished records a terminal transition
func (m *Metrics) JobFinished(kind models.AgentKind, status models.JobStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(string(kind), string(status)).Inc()
	m.jobDuration.WithLabelValues(string(kind), string(status)).Observe(duration.Seconds())
	m.jobsActive.WithLabelValues(string(kind)).Dec()
}

// AlertDropped records an alert discarded for a slow subscriber
func (m *Metrics) AlertDropped() {
	if m == nil {
		return
	}
	m.alertsDropped.Inc()
}

// SetStoreRecords reports the in-memory store size
func (m *Metrics) SetStoreRecords(n int) {
	if m == nil {
		return
	}
	m.storeRecords.Set(float64(n))
}

// SetStuckJobs reports how many running jobs overran their deadline
func (m *Metrics) SetStuckJobs(n int) {
	if m == nil {
		return
	}
	m.stuckJobs.Set(float64(n))
}
