package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"secops-orchestrator/api/rest/middleware"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/textgen"
)

// ReportHandler generates analyst reports through the text generator
type ReportHandler struct {
	generator textgen.Generator
	logger    *slog.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(generator textgen.Generator, logger *slog.Logger) *ReportHandler {
	if generator == nil {
		generator = textgen.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandler{
		generator: generator,
		logger:    logger.With("component", "report_handler"),
	}
}

// ForensicsReportRequest is the body of POST /v1/reports/forensics
type ForensicsReportRequest struct {
	IncidentSummary string `json:"incidentSummary"`
}

// ThreatAnalysisRequest is the body of POST /v1/reports/threat-analysis
type ThreatAnalysisRequest struct {
	AnomalyDescription string `json:"anomalyDescription"`
}

// ForensicsReport handles POST /v1/reports/forensics
func (h *ReportHandler) ForensicsReport(w http.ResponseWriter, r *http.Request) {
	var req ForensicsReportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeServiceError(w, fmt.Errorf("%w: malformed body: %v", models.ErrInvalidParameters, err))
		return
	}
	if strings.TrimSpace(req.IncidentSummary) == "" {
		writeError(w, http.StatusBadRequest, "invalid_parameters", "incidentSummary is required")
		return
	}

	report, err := textgen.ForensicsReport(r.Context(), h.generator, req.IncidentSummary)
	if err != nil {
		h.logger.Warn("forensics report failed", "by", middleware.IdentityFromContext(r.Context()), "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report": report,
	})
}

// ThreatAnalysis handles POST /v1/reports/threat-analysis
func (h *ReportHandler) ThreatAnalysis(w http.ResponseWriter, r *http.Request) {
	var req ThreatAnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeServiceError(w, fmt.Errorf("%w: malformed body: %v", models.ErrInvalidParameters, err))
		return
	}
	if strings.TrimSpace(req.AnomalyDescription) == "" {
		writeError(w, http.StatusBadRequest, "invalid_parameters", "anomalyDescription is required")
		return
	}

	analysis, err := textgen.ThreatAnalysis(r.Context(), h.generator, req.AnomalyDescription)
	if err != nil {
		h.logger.Warn("threat analysis failed", "by", middleware.IdentityFromContext(r.Context()), "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analysis": analysis,
	})
}
