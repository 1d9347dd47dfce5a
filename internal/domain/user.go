// Package domain contains core domain types for the dialog trainer gateway.
package domain

import (
	"time"
)

// User represents an anonymous device identity known to the gateway.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DialogBinding remembers which backend dialog a browser tab is attached to,
// so a reconnecting tab resumes the same conversation.
type DialogBinding struct {
	UserID     string     `json:"user_id"`
	SessionID  string     `json:"session_id"`
	ScenarioID int64      `json:"scenario_id"`
	DialogID   int64      `json:"dialog_id"`
	TimedMode  bool       `json:"timed_mode"`
	Phase      Phase      `json:"phase"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsOpen returns true if the bound dialog has not ended.
func (b *DialogBinding) IsOpen() bool {
	return b.EndedAt == nil && b.Phase != PhaseTerminated
}

// IdleFor returns how long the binding has gone without updates.
func (b *DialogBinding) IdleFor(now time.Time) time.Duration {
	d := now.Sub(b.UpdatedAt)
	if d < 0 {
		return 0
	}
	return d
}
