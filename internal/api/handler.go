// Package api provides HTTP handlers for the dialog trainer gateway.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/dialog-trainer/internal/domain"
)

// Repository is the persistence the REST handlers read from.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListBindings(ctx context.Context, userID string) ([]*domain.DialogBinding, error)
	Ping(ctx context.Context) error
}

// Handler provides common handler utilities.
type Handler struct {
	repo Repository
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
