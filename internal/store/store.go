// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/dialog-trainer/internal/domain"
)

// Repository defines the interface for persisting users and dialog bindings.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetActiveBinding returns the open binding of a tab for a scenario, or
	// nil if there is none.
	GetActiveBinding(ctx context.Context, userID, sessionID string, scenarioID int64) (*domain.DialogBinding, error)

	// UpsertBinding creates or replaces the binding for (user, tab, scenario).
	UpsertBinding(ctx context.Context, b *domain.DialogBinding) error

	// MarkBindingEnded records that a bound dialog has terminated.
	MarkBindingEnded(ctx context.Context, userID string, dialogID int64, endedAt time.Time) error

	// ListBindings returns a user's bindings, most recently updated first.
	ListBindings(ctx context.Context, userID string) ([]*domain.DialogBinding, error)

	// CleanupStaleBindings removes bindings not updated within ttl.
	CleanupStaleBindings(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
