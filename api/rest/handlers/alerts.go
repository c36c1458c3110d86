package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"secops-orchestrator/core/events"
	"secops-orchestrator/core/models"

	"github.com/gorilla/websocket"
)

const (
	defaultRecentAlerts = 20
	streamHeartbeat     = 30 * time.Second
	wsWriteTimeout      = 10 * time.Second
)

// AlertHandler serves the alert history and live alert feeds
type AlertHandler struct {
	publisher *events.Publisher
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewAlertHandler creates a new alert handler. With no allowed origins the
// WebSocket endpoint only accepts same-origin browsers.
func NewAlertHandler(publisher *events.Publisher, allowedOrigins []string, logger *slog.Logger) *AlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
	return &AlertHandler{
		publisher: publisher,
		upgrader:  upgrader,
		heartbeat: streamHeartbeat,
		logger:    logger.With("component", "alert_handler"),
	}
}

// alertFilter narrows a live feed to one agent or job
type alertFilter struct {
	agent string
	jobID string
}

func parseAlertFilter(r *http.Request) (alertFilter, bool) {
	q := r.URL.Query()
	f := alertFilter{jobID: q.Get("job")}
	if agent := q.Get("agent"); agent != "" {
		kind, ok := models.ParseAgentKind(agent)
		if !ok {
			return f, false
		}
		f.agent = kind.DisplayName()
	}
	return f, true
}

func (f alertFilter) match(ev models.AlertEvent) bool {
	if f.agent != "" && ev.SourceAgent != f.agent {
		return false
	}
	if f.jobID != "" && ev.JobID != f.jobID {
		return false
	}
	return true
}

// ListAlerts handles GET /v1/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentAlerts
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_parameters", "limit must be a positive integer")
			return
		}
		limit = n
	}
	alerts := h.publisher.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": alerts,
		"count": len(alerts),
	})
}

// streamHeartbeatFrame is the keepalive line of the NDJSON stream. Alerts
// never carry a "type" key, so readers can tell the two apart.
type streamHeartbeatFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamAlerts handles GET /v1/alerts/stream as newline-delimited JSON.
// Every line is a JSON object: an alert, or {"type":"heartbeat"} sent
// when the stream has been idle.
func (h *AlertHandler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseAlertFilter(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_agent", "unknown agent filter")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	sub := h.publisher.Subscribe(r.Context())
	defer h.publisher.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("alert stream opened", "sub_id", sub.ID)
	enc := json.NewEncoder(w)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if !filter.match(ev) {
				continue
			}
			if err := enc.Encode(ev); err != nil {
				h.logger.Debug("alert stream write failed", "sub_id", sub.ID, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := enc.Encode(streamHeartbeatFrame{Type: "heartbeat", Timestamp: time.Now().UTC()}); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			h.logger.Debug("alert stream closed", "sub_id", sub.ID, "dropped", sub.Dropped())
			return
		}
	}
}

// AlertsWebSocket handles GET /v1/alerts/ws, sending each alert as a JSON frame
func (h *AlertHandler) AlertsWebSocket(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseAlertFilter(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_agent", "unknown agent filter")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.publisher.Subscribe(ctx)
	h.logger.Debug("alert websocket opened", "sub_id", sub.ID, "remote", r.RemoteAddr)

	// Inbound frames are ignored; a read error means the peer went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !filter.match(ev) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("alert websocket write failed", "sub_id", sub.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-ctx.Done():
			h.logger.Debug("alert websocket closed", "sub_id", sub.ID, "dropped", sub.Dropped())
			return
		}
	}
}
