package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/dialog-trainer/internal/backend"
	"github.com/ashureev/dialog-trainer/internal/domain"
)

// Send exchanges one user message with the backend. The message is appended
// to the log as a pending entry before the request is issued. Send is a
// no-op unless the session is Active, the text is non-blank and no other
// exchange is in flight.
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.exchange(ctx, text, domain.PhaseActive)
}

// exchange runs one send/receive cycle. required is the phase the session
// must be in: Active for user sends, Finishing for the finish phrase.
func (c *Controller) exchange(ctx context.Context, text string, required domain.Phase) error {
	c.mu.Lock()
	id, ok := c.session.DialogID()
	if c.closed || !ok || c.session.Phase != required || c.inflight || strings.TrimSpace(text) == "" {
		c.logger.Debug("Ignoring send", "phase", c.session.Phase, "inflight", c.inflight)
		c.mu.Unlock()
		return nil
	}

	c.notice = nil
	idx := c.log.AppendPending(text)
	c.emitLocked(Event{Kind: EventMessageAppended, Index: idx, Message: &domain.ChatMessage{Role: domain.RoleUser, Text: text, Pending: true}})
	c.inflight = true
	c.emitLocked(Event{Kind: EventBusy, Busy: true})
	gen := c.generation
	c.mu.Unlock()

	reply, err := c.backend.Send(ctx, id, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		c.logger.Debug("Discarding stale reply", "dialog_id", id)
		return nil
	}
	defer func() {
		c.inflight = false
		c.emitLocked(Event{Kind: EventBusy, Busy: false})
	}()

	if err != nil {
		// The optimistic entry stays in the log so the user can resend it.
		c.confirmPendingLocked()
		if required == domain.PhaseFinishing {
			c.setPhaseLocked(domain.PhaseActive)
		}
		return c.failLocked(&Failure{Kind: KindExchangeFailure, Op: "send", Err: err})
	}

	switch r := reply.(type) {
	case backend.AnalysisReply:
		c.confirmPendingLocked()
		c.applyAnalysisLocked(r)
		return nil
	case backend.PairedReply:
		// The optimistic entry already represents the server's user message.
		c.confirmPendingLocked()
		c.appendLocked(toChatMessage(r.Assistant))
	case backend.SingleReply:
		c.confirmPendingLocked()
		// A user-sender reply is the echo of the optimistic entry.
		if role := domain.ParseRole(r.Sender); role != domain.RoleUser {
			c.appendLocked(domain.ChatMessage{Role: role, Text: r.Text})
		}
	case backend.ErrorReply:
		c.confirmPendingLocked()
		c.stopTimerLocked()
		c.setPhaseLocked(domain.PhaseTerminated)
		kind := KindAnalysisUnavailable
		if r.AlreadyFinished() {
			kind = KindAlreadyFinished
		}
		return c.failLocked(&Failure{Kind: kind, Op: "send", Err: fmt.Errorf("backend error: %s", r.Message)})
	default:
		c.confirmPendingLocked()
		if required == domain.PhaseFinishing {
			c.setPhaseLocked(domain.PhaseActive)
		}
		return c.failLocked(&Failure{Kind: KindExchangeFailure, Op: "send", Err: backend.ErrUnrecognizedReply})
	}

	// The backend answered the finish phrase with an ordinary reply: the
	// conversation goes on.
	if required == domain.PhaseFinishing {
		c.setPhaseLocked(domain.PhaseActive)
	}
	return nil
}

// applyAnalysisLocked terminates the session with the backend's analysis.
func (c *Controller) applyAnalysisLocked(r backend.AnalysisReply) {
	c.stopTimerLocked()
	c.setPhaseLocked(domain.PhaseTerminated)

	result := &domain.AnalysisResult{Text: r.Text, Achievements: append([]string(nil), r.Achievements...)}
	c.analysis = result
	c.appendLocked(domain.ChatMessage{Role: domain.RoleSystem, Text: r.Text})
	a := *result
	c.emitLocked(Event{Kind: EventAnalysis, Analysis: &a})

	for _, label := range c.achievements.Enqueue(r.Achievements) {
		c.emitLocked(Event{Kind: EventAchievement, Achievement: label})
	}
	c.logger.Info("Dialog analysed", "dialog_id", c.dialogIDLocked(), "achievements", len(r.Achievements))
}
