package backend

import (
	"encoding/json"
	"fmt"
)

// Reply is the decoded response of POST /session/{id}/message.
// It is one of AnalysisReply, PairedReply, SingleReply or ErrorReply.
type Reply interface {
	reply()
}

// AnalysisReply ends the dialog with the backend's analysis.
type AnalysisReply struct {
	Text         string
	Achievements []string
}

// PairedReply carries the backend's record of the user message and the
// counterpart's answer.
type PairedReply struct {
	User      WireMessage
	Assistant WireMessage
}

// SingleReply carries a single message from one sender.
type SingleReply struct {
	Sender string
	Text   string
}

// ErrorReply is an error reported in place of a reply.
type ErrorReply struct {
	Message string
	Code    string
	Details string
}

func (AnalysisReply) reply() {}
func (PairedReply) reply()   {}
func (SingleReply) reply()   {}
func (ErrorReply) reply()    {}

// AlreadyFinished reports whether the error reply signals a finished dialog.
func (r ErrorReply) AlreadyFinished() bool {
	return isAlreadyFinished(r.Code, r.Message)
}

type replyProbe struct {
	Analysis        *string      `json:"analysis"`
	Achievements    []string     `json:"achievements"`
	NewAchievements []string     `json:"new_achievements"`
	UserMessage     *WireMessage `json:"user_message"`
	AIMessage       *WireMessage `json:"ai_message"`
	Sender          *string      `json:"sender"`
	Text            *string      `json:"text"`
	Error           *string      `json:"error"`
	Code            string       `json:"code"`
	Details         string       `json:"details"`
}

// DecodeReply classifies a message response body. The first matching shape
// wins: analysis, paired, single-sender, error.
func DecodeReply(body []byte) (Reply, error) {
	var p replyProbe
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	switch {
	case p.Analysis != nil:
		achievements := p.Achievements
		if len(achievements) == 0 {
			achievements = p.NewAchievements
		}
		return AnalysisReply{Text: *p.Analysis, Achievements: achievements}, nil
	case p.UserMessage != nil && p.AIMessage != nil:
		return PairedReply{User: *p.UserMessage, Assistant: *p.AIMessage}, nil
	case p.Sender != nil && p.Text != nil && *p.Sender != "" && *p.Text != "":
		return SingleReply{Sender: *p.Sender, Text: *p.Text}, nil
	case p.Error != nil:
		return ErrorReply{Message: *p.Error, Code: p.Code, Details: p.Details}, nil
	default:
		return nil, ErrUnrecognizedReply
	}
}
