package chatws

import (
	"github.com/ashureev/dialog-trainer/internal/dialog"
	"github.com/ashureev/dialog-trainer/internal/domain"
)

// Inbound frame types.
const (
	frameStart    = "start"
	frameSend     = "send"
	frameFinish   = "finish"
	frameReset    = "reset"
	frameDismiss  = "dismiss"
	frameSnapshot = "snapshot"
	framePing     = "ping"
)

// Outbound frame types besides controller events.
const (
	framePong  = "pong"
	frameError = "error"
)

// Error codes carried by error frames.
const (
	codeBadFrame    = "bad_frame"
	codeUnknownType = "unknown_type"
	codeNoDialog    = "no_dialog"
	codeRateLimited = "rate_limited"
	codeBusy        = "busy"
)

// inboundFrame is a browser command.
type inboundFrame struct {
	Type       string `json:"type"`
	ScenarioID int64  `json:"scenario_id,omitempty"`
	TimedMode  bool   `json:"timed_mode,omitempty"`
	Text       string `json:"text,omitempty"`
}

// snapshotFrame carries the full read-side state of the controller.
type snapshotFrame struct {
	Type         string                 `json:"type"`
	Session      domain.DialogSession   `json:"session"`
	Messages     []domain.ChatMessage   `json:"messages"`
	Elapsed      int                    `json:"elapsed"`
	Busy         bool                   `json:"busy"`
	Analysis     *domain.AnalysisResult `json:"analysis,omitempty"`
	Achievements []string               `json:"achievements,omitempty"`
	Notice       *dialog.Notice         `json:"notice,omitempty"`
}

type pongFrame struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newSnapshot(c *dialog.Controller) snapshotFrame {
	return snapshotFrame{
		Type:         frameSnapshot,
		Session:      c.Session(),
		Messages:     c.Messages(),
		Elapsed:      c.Elapsed(),
		Busy:         c.Busy(),
		Analysis:     c.Analysis(),
		Achievements: c.Achievements(),
		Notice:       c.Notice(),
	}
}

func newError(code, message string) errorFrame {
	return errorFrame{Type: frameError, Code: code, Message: message}
}
