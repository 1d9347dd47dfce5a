// Package backend implements the HTTP client for the remote training backend
// that creates dialogs, generates counterpart replies and produces analyses.
package backend

// WireMessage is a message as recorded by the backend.
type WireMessage struct {
	ID        int64  `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Scenario is the scenario summary echoed by the start endpoint.
type Scenario struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StartResponse is returned by POST /session/start.
type StartResponse struct {
	DialogID       int64        `json:"dialog_id"`
	Scenario       *Scenario    `json:"scenario,omitempty"`
	FirstAIMessage *WireMessage `json:"first_ai_message,omitempty"`
}

// History is returned by GET /session/{id}/messages.
type History struct {
	DialogID int64         `json:"dialog_id"`
	Status   string        `json:"status,omitempty"`
	Messages []WireMessage `json:"messages"`
}

// StatusActive is the backend status of a dialog that still accepts messages.
const StatusActive = "active"

// IsActive reports whether the backend still considers the dialog open.
// An empty status is treated as active for older backends that omit it.
func (h *History) IsActive() bool {
	return h.Status == "" || h.Status == StatusActive
}

// FinishResponse is returned by a successful POST /session/{id}/finish.
// Analysis is only present on backends that analyse at finish time.
type FinishResponse struct {
	Message         string   `json:"message,omitempty"`
	Analysis        string   `json:"analysis,omitempty"`
	NewAchievements []string `json:"new_achievements,omitempty"`
}

type startRequest struct {
	ScenarioID int64 `json:"scenario_id"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type finishRequest struct {
	Duration *int `json:"duration,omitempty"`
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
