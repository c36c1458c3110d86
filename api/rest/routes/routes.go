package routes

import (
	"log/slog"
	"net/http"

	"secops-orchestrator/api/rest/handlers"
	"secops-orchestrator/api/rest/middleware"
	"secops-orchestrator/core/events"
	"secops-orchestrator/core/scheduler"
	"secops-orchestrator/core/textgen"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the services the HTTP API is built on
type Dependencies struct {
	Dispatcher     *scheduler.Dispatcher
	Publisher      *events.Publisher
	Verifier       middleware.TokenVerifier
	Archive        handlers.JobArchive     // optional
	Artifacts      handlers.ArtifactLister // optional
	Generator      textgen.Generator
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *slog.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobHandler := handlers.NewJobHandler(deps.Dispatcher, deps.Archive, deps.Artifacts, logger)
	dashboardHandler := handlers.NewDashboardHandler(deps.Dispatcher, deps.Publisher)
	alertHandler := handlers.NewAlertHandler(deps.Publisher, deps.AllowedOrigins, logger)
	reportHandler := handlers.NewReportHandler(deps.Generator, logger)

	r.Use(middleware.RequestLogger(logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Stream endpoints also accept ?access_token= for browser clients.
	streamAuth := middleware.Authenticate(deps.Verifier, true, logger)
	r.Handle("/v1/alerts/stream", streamAuth(http.HandlerFunc(alertHandler.StreamAlerts))).Methods("GET")
	r.Handle("/v1/alerts/ws", streamAuth(http.HandlerFunc(alertHandler.AlertsWebSocket))).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(middleware.Authenticate(deps.Verifier, false, logger))

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", jobHandler.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")
	api.HandleFunc("/jobs/{id}/artifacts", jobHandler.GetJobArtifacts).Methods("GET")

	// Agent endpoints; POST /v1/agents/{kind} keeps the original per-agent routes working
	api.HandleFunc("/agents", dashboardHandler.ListAgents).Methods("GET")
	api.HandleFunc("/agents/{kind}/jobs", jobHandler.SubmitAgentJob).Methods("POST")
	api.HandleFunc("/agents/{kind}", jobHandler.SubmitAgentJob).Methods("POST")
	api.HandleFunc("/dashboard", dashboardHandler.GetDashboard).Methods("GET")

	// Alerts
	api.HandleFunc("/alerts", alertHandler.ListAlerts).Methods("GET")

	// Reports
	api.HandleFunc("/reports/forensics", reportHandler.ForensicsReport).Methods("POST")
	api.HandleFunc("/reports/threat-analysis", reportHandler.ThreatAnalysis).Methods("POST")
}
