package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Counter reports a gauge, such as the number of open chat connections.
type Counter interface {
	Count() int
}

// HealthHandler reports readiness of the gateway.
type HealthHandler struct {
	*Handler
	sessions Counter
}

// NewHealthHandler creates a health handler. sessions may be nil.
func NewHealthHandler(base *Handler, sessions Counter) *HealthHandler {
	return &HealthHandler{Handler: base, sessions: sessions}
}

// RegisterHealth registers the readiness route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Ready)
}

// Ready pings the database and reports the number of live chat sessions.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		slog.Warn("Readiness check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "unavailable",
			"database": "unreachable",
		})
		return
	}

	body := map[string]interface{}{
		"status":   "ok",
		"database": "ok",
	}
	if h.sessions != nil {
		body["chat_sessions"] = h.sessions.Count()
	}
	JSON(w, http.StatusOK, body)
}
