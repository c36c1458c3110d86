package models

import "time"

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s.IsTerminal()
}

// CanTransitionTo is the job state machine: queued -> running -> terminal
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// JobResult is the output of a successful agent run
type JobResult map[string]interface{}

// JobRequest is the immutable input of a job, built on admission
type JobRequest struct {
	AgentKind   AgentKind  `json:"agentKind"`
	Parameters  Parameters `json:"parameters"`
	SubmittedBy string     `json:"submittedBy"`
	SubmittedAt time.Time  `json:"submittedAt"`
}

// JobRecord tracks the lifecycle of one submitted operation
type JobRecord struct {
	ID          string     `json:"id"`
	Request     JobRequest `json:"request"`
	Status      JobStatus  `json:"status"`
	Result      JobResult  `json:"result,omitempty"`      // succeeded only
	ErrorDetail string     `json:"errorDetail,omitempty"` // failed, timed_out, cancelled
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with r
func (r *JobRecord) Clone() *JobRecord {
	c := *r
	if r.Result != nil {
		c.Result = make(JobResult, len(r.Result))
		for k, v := range r.Result {
			c.Result[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Duration returns how long the job ran, or zero if it never started
func (r *JobRecord) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.FinishedAt == nil {
		return time.Since(*r.StartedAt)
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// InFlightJob describes a job currently being driven by the runner.
// StartedAt is zero until the job is running.
type InFlightJob struct {
	ID        string
	Kind      AgentKind
	StartedAt time.Time
	Timeout   time.Duration
}
