package handler

import (
	"net/http"
	"time"

	"github.com/draftforge-ai/authoring-platform/internal/events"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	nats    *events.Client
	started time.Time
}

// NewHealthHandler creates a health handler. nats may be nil when auditing
// is disabled.
func NewHealthHandler(nats *events.Client) *HealthHandler {
	return &HealthHandler{nats: nats, started: time.Now()}
}

// Health returns liveness status.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// Ready returns readiness status, including the audit stream connection.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.nats != nil {
		if h.nats.IsConnected() {
			checks["nats"] = "ok"
		} else {
			checks["nats"] = "disconnected"
			healthy = false
		}
	} else {
		checks["nats"] = "disabled"
	}

	status := http.StatusOK
	statusText := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": statusText,
		"checks": checks,
	})
}
