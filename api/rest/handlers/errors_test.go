package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"secops-orchestrator/core/models"
	"secops-orchestrator/core/scheduler"
	"secops-orchestrator/core/textgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: %q", models.ErrUnknownAgent, "quantum"), http.StatusNotFound, "unknown_agent"},
		{fmt.Errorf("%w: no log data provided", models.ErrInvalidParameters), http.StatusBadRequest, "invalid_parameters"},
		{models.ErrThrottled, http.StatusTooManyRequests, "throttled"},
		{models.ErrCapacityExceeded, http.StatusServiceUnavailable, "capacity_exceeded"},
		{scheduler.ErrShuttingDown, http.StatusServiceUnavailable, "shutting_down"},
		{fmt.Errorf("%w: job-1", models.ErrNotFound), http.StatusNotFound, "not_found"},
		{textgen.ErrNotConfigured, http.StatusServiceUnavailable, "generator_not_configured"},
		{fmt.Errorf("%w: status 500", textgen.ErrUnavailable), http.StatusBadGateway, "generator_unavailable"},
		{fmt.Errorf("%w: status 403", textgen.ErrCredentialsRejected), http.StatusServiceUnavailable, "generator_misconfigured"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}
