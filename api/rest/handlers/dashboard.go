package handlers

import (
	"net/http"

	"secops-orchestrator/core/events"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/repository"
	"secops-orchestrator/core/scheduler"
)

// DashboardHandler serves the agent overview used by the dashboard
type DashboardHandler struct {
	dispatcher *scheduler.Dispatcher
	publisher  *events.Publisher
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dispatcher *scheduler.Dispatcher, publisher *events.Publisher) *DashboardHandler {
	return &DashboardHandler{
		dispatcher: dispatcher,
		publisher:  publisher,
	}
}

// ListAgents handles GET /v1/agents
func (h *DashboardHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	statuses := h.dispatcher.Agents()
	items := make([]map[string]interface{}, len(statuses))
	for i, st := range statuses {
		items[i] = agentResponse(st)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

func agentResponse(st scheduler.AgentStatus) map[string]interface{} {
	state := "idle"
	if st.Active > 0 {
		state = "active"
	}
	resp := map[string]interface{}{
		"id":          st.Kind,
		"name":        st.Kind.DisplayName(),
		"description": st.Kind.Description(),
		"status":      state,
		"active":      st.Active,
		"policy": map[string]interface{}{
			"maxConcurrent":  st.Policy.MaxConcurrent,
			"timeoutSeconds": st.Policy.Timeout.Seconds(),
		},
	}
	if st.LastActivity != nil {
		resp["lastActivity"] = st.LastActivity
		resp["lastJob"] = map[string]interface{}{
			"id":     st.LastJobID,
			"status": st.LastStatus,
		}
	}
	return resp
}

// GetDashboard handles GET /v1/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	byStatus := make(map[models.JobStatus]int)
	byAgent := make(map[models.AgentKind]map[models.JobStatus]int)
	for _, job := range h.dispatcher.List(repository.Filter{}) {
		byStatus[job.Status]++
		if byAgent[job.Request.AgentKind] == nil {
			byAgent[job.Request.AgentKind] = make(map[models.JobStatus]int)
		}
		byAgent[job.Request.AgentKind][job.Status]++
	}

	statuses := h.dispatcher.Agents()
	agents := make([]map[string]interface{}, len(statuses))
	activeAgents := 0
	for i, st := range statuses {
		agents[i] = agentResponse(st)
		if st.Active > 0 {
			activeAgents++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents":       agents,
		"activeAgents": activeAgents,
		"jobs": map[string]interface{}{
			"byStatus": byStatus,
			"byAgent":  byAgent,
		},
		"recentAlerts": h.publisher.Recent(defaultRecentAlerts),
		"subscribers":  h.publisher.SubscriberCount(),
	})
}
