package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"secops-orchestrator/core/models"
	"secops-orchestrator/core/scheduler"
	"secops-orchestrator/core/textgen"
)

// retryAfterSeconds is advertised on throttled submissions
const retryAfterSeconds = 5

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError maps orchestrator errors onto HTTP responses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownAgent):
		writeError(w, http.StatusNotFound, "unknown_agent", err.Error())
	case errors.Is(err, models.ErrInvalidParameters):
		writeError(w, http.StatusBadRequest, "invalid_parameters", err.Error())
	case errors.Is(err, models.ErrThrottled):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "throttled", err.Error())
	case errors.Is(err, models.ErrCapacityExceeded):
		writeError(w, http.StatusServiceUnavailable, "capacity_exceeded", err.Error())
	case errors.Is(err, scheduler.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, textgen.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "generator_not_configured", err.Error())
	case errors.Is(err, textgen.ErrCredentialsRejected):
		writeError(w, http.StatusServiceUnavailable, "generator_misconfigured", err.Error())
	case errors.Is(err, textgen.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "generator_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
