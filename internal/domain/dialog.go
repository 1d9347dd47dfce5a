package domain

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is reserved for the rendered analysis text.
	RoleSystem Role = "system"
)

// ParseRole maps a backend sender string onto a Role.
// Unknown senders are treated as the counterpart.
func ParseRole(sender string) Role {
	switch Role(sender) {
	case RoleUser:
		return RoleUser
	case RoleSystem:
		return RoleSystem
	default:
		return RoleAssistant
	}
}

// Phase is the lifecycle phase of a dialog session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseStarting   Phase = "starting"
	PhaseActive     Phase = "active"
	PhaseFinishing  Phase = "finishing"
	PhaseTerminated Phase = "terminated"
)

// ScenarioRef identifies the training scenario a session is bound to.
type ScenarioRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// DialogSession is one scenario-bound training conversation.
// ID is nil until the session has been started and is never reassigned.
type DialogSession struct {
	ID        *int64      `json:"id"`
	Phase     Phase       `json:"phase"`
	Scenario  ScenarioRef `json:"scenario"`
	TimedMode bool        `json:"timed_mode"`
}

// DialogID returns the session identifier and whether it has been assigned.
func (s DialogSession) DialogID() (int64, bool) {
	if s.ID == nil {
		return 0, false
	}
	return *s.ID, true
}

// ChatMessage is a single entry of the message log.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Pending bool   `json:"pending,omitempty"`
}

// AnalysisResult is the terminal summary produced once per session.
type AnalysisResult struct {
	Text         string   `json:"text"`
	Achievements []string `json:"achievements,omitempty"`
}

// TimerState captures the wall-clock bounds of a timed session.
type TimerState struct {
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Duration returns the whole-second duration between start and end.
// The second return value is false until both bounds are set.
func (t TimerState) Duration() (int, bool) {
	if t.StartedAt == nil || t.EndedAt == nil {
		return 0, false
	}
	d := t.EndedAt.Sub(*t.StartedAt)
	if d < 0 {
		return 0, true
	}
	return int(d / time.Second), true
}
