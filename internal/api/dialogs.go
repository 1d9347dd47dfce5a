package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/dialog-trainer/internal/domain"
	"github.com/ashureev/dialog-trainer/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ClientConfig is what the frontend needs to drive a dialog.
type ClientConfig struct {
	FinishPhrase   string `json:"finish_phrase"`
	TickIntervalMS int64  `json:"tick_interval_ms"`
	WebSocketPath  string `json:"ws_path"`
}

// DialogHandler serves the caller's identity, client config and dialog
// bindings.
type DialogHandler struct {
	*Handler
	cfg ClientConfig
}

// NewDialogHandler creates a dialog handler.
func NewDialogHandler(base *Handler, cfg ClientConfig) *DialogHandler {
	return &DialogHandler{Handler: base, cfg: cfg}
}

// RegisterRoutes registers dialog routes.
func (h *DialogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/dialogs", h.ListDialogs)
	})
}

// GetMe returns the current user's information.
func (h *DialogHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":       user.UserID,
		"username":      user.Username,
		"session_id":    identity.SessionIDFromContext(r.Context()),
		"authenticated": identity.CredentialFromContext(r.Context()) != "",
		"last_seen_at":  user.LastSeenAt,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *DialogHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.cfg)
}

// ListDialogs returns the caller's dialog bindings, most recent first.
func (h *DialogHandler) ListDialogs(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bindings, err := h.repo.ListBindings(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list dialog bindings", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list dialogs")
		return
	}
	if bindings == nil {
		bindings = []*domain.DialogBinding{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"dialogs": bindings})
}
