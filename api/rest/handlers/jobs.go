package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"secops-orchestrator/api/rest/middleware"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/repository"
	"secops-orchestrator/core/scheduler"
	"secops-orchestrator/core/spec"

	"github.com/gorilla/mux"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobArchive serves records evicted from the in-memory store
type JobArchive interface {
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)
	GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error)
}

// ArtifactLister lists the artifacts recorded for a job
type ArtifactLister interface {
	Artifacts(ctx context.Context, jobID string) ([]models.JobArtifact, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	dispatcher *scheduler.Dispatcher
	archive    JobArchive
	artifacts  ArtifactLister
	logger     *slog.Logger
}

// NewJobHandler creates a new job handler. archive and artifacts may be nil.
func NewJobHandler(dispatcher *scheduler.Dispatcher, archive JobArchive, artifacts ArtifactLister, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		dispatcher: dispatcher,
		archive:    archive,
		artifacts:  artifacts,
		logger:     logger.With("component", "job_handler"),
	}
}

// SubmitJobRequest is the body of POST /v1/jobs
type SubmitJobRequest = spec.JobSubmission

// SubmitJob handles POST /v1/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	kind, params, err := spec.ParseSubmission(body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.submit(w, r, kind, params)
}

// SubmitAgentJob handles POST /v1/agents/{kind}/jobs and the legacy
// POST /v1/agents/{kind} routes. The body holds the kind's parameters; recon
// also takes the range from the ip_range query parameter.
func (h *JobHandler) SubmitAgentJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["kind"]
	kind, ok := models.ParseAgentKind(name)
	if !ok {
		writeServiceError(w, fmt.Errorf("%w: %q", models.ErrUnknownAgent, name))
		return
	}

	var params models.Parameters
	if ipRange := r.URL.Query().Get("ip_range"); kind == models.AgentRecon && ipRange != "" {
		params = models.ReconParams{IPRange: strings.TrimSpace(ipRange)}
	} else {
		body, err := readBody(w, r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		params, err = spec.ParseParameters(kind, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}
	h.submit(w, r, kind, params)
}

func (h *JobHandler) submit(w http.ResponseWriter, r *http.Request, kind models.AgentKind, params models.Parameters) {
	job, err := h.dispatcher.Submit(r.Context(), kind, params, middleware.IdentityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", models.ErrInvalidParameters, err)
	}
	return body, nil
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// lookup reads the live store first, then the archive for evicted records
func (h *JobHandler) lookup(ctx context.Context, id string) (*models.JobRecord, error) {
	job, err := h.dispatcher.Get(id)
	if err == nil || !errors.Is(err, models.ErrNotFound) || h.archive == nil {
		return job, err
	}
	return h.archive.GetJob(ctx, id)
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.Filter{Limit: defaultListLimit}

	if agent := q.Get("agent"); agent != "" {
		kind, ok := models.ParseAgentKind(agent)
		if !ok {
			writeServiceError(w, fmt.Errorf("%w: %q", models.ErrUnknownAgent, agent))
			return
		}
		filter.Agent = kind
	}
	if status := q.Get("status"); status != "" {
		s := models.JobStatus(status)
		if !s.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid_parameters", fmt.Sprintf("unknown status %q", status))
			return
		}
		filter.Status = s
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_parameters", "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	jobs := h.dispatcher.List(filter)
	items := make([]map[string]interface{}, len(jobs))
	for i, job := range jobs {
		items[i] = jobSummary(job)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// CancelJob handles POST /v1/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.dispatcher.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.logger.Info("cancel requested", "job_id", id, "status", job.Status, "by", middleware.IdentityFromContext(r.Context()))
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	events, err := h.dispatcher.Events(id)
	if errors.Is(err, models.ErrNotFound) && h.archive != nil {
		if _, err = h.archive.GetJob(r.Context(), id); err == nil {
			events, err = h.archive.GetJobEvents(r.Context(), id, 100)
		}
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"seq":      event.Seq,
			"at":       event.At,
			"toStatus": event.ToStatus,
			"reason":   event.Reason,
		}
		if event.FromStatus != nil {
			item["fromStatus"] = *event.FromStatus
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetJobArtifacts handles GET /v1/jobs/{id}/artifacts
func (h *JobHandler) GetJobArtifacts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.lookup(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	artifacts := []models.JobArtifact{}
	if h.artifacts != nil {
		found, err := h.artifacts.Artifacts(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to list artifacts", "job_id", id, "error", err)
			writeServiceError(w, err)
			return
		}
		artifacts = found
	}

	typeFilter := models.ArtifactType(r.URL.Query().Get("type"))
	items := make([]map[string]interface{}, 0, len(artifacts))
	for _, artifact := range artifacts {
		if typeFilter != "" && artifact.Type != typeFilter {
			continue
		}
		items = append(items, map[string]interface{}{
			"id":        artifact.ID,
			"type":      artifact.Type,
			"uri":       artifact.URI,
			"createdAt": artifact.CreatedAt,
			"meta":      artifact.Meta,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

func jobSummary(job *models.JobRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":          job.ID,
		"agentKind":   job.Request.AgentKind,
		"status":      job.Status,
		"submittedBy": job.Request.SubmittedBy,
		"submittedAt": job.Request.SubmittedAt,
		"updatedAt":   job.UpdatedAt,
	}
}

func jobResponse(job *models.JobRecord) map[string]interface{} {
	resp := map[string]interface{}{
		"id":          job.ID,
		"agentKind":   job.Request.AgentKind,
		"agent":       job.Request.AgentKind.DisplayName(),
		"status":      job.Status,
		"parameters":  job.Request.Parameters,
		"submittedBy": job.Request.SubmittedBy,
		"timestamps": map[string]interface{}{
			"submittedAt": job.Request.SubmittedAt,
			"startedAt":   job.StartedAt,
			"finishedAt":  job.FinishedAt,
			"updatedAt":   job.UpdatedAt,
		},
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.ErrorDetail != "" {
		resp["errorDetail"] = job.ErrorDetail
	}
	return resp
}
