package dialog

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/dialog-trainer/internal/backend"
	"github.com/ashureev/dialog-trainer/internal/domain"
)

// Start creates the dialog on the backend and hydrates its history.
// It is a no-op unless the session is Idle, so a second call while one is
// outstanding does nothing. On failure the session stays Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.session.Phase != domain.PhaseIdle {
		c.logger.Debug("Ignoring start", "phase", c.session.Phase)
		c.mu.Unlock()
		return nil
	}
	c.notice = nil
	c.setPhaseLocked(domain.PhaseStarting)
	gen := c.generation
	scenarioID := c.session.Scenario.ID
	c.mu.Unlock()

	resp, err := c.backend.Start(ctx, scenarioID)

	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.setPhaseLocked(domain.PhaseIdle)
		defer c.mu.Unlock()
		return c.failLocked(&Failure{Kind: KindStartFailure, Op: "start", Err: err})
	}

	id := resp.DialogID
	c.session.ID = &id
	if resp.Scenario != nil {
		c.session.Scenario.Name = resp.Scenario.Name
		c.session.Scenario.Description = resp.Scenario.Description
	}
	c.mu.Unlock()

	c.logger.Info("Dialog started", "dialog_id", id, "scenario_id", scenarioID)

	history, herr := c.backend.Messages(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	switch {
	case herr == nil:
		c.hydrateLocked(history)
	case resp.FirstAIMessage != nil:
		c.logger.Warn("History hydration failed, using first message", "dialog_id", id, "error", herr)
		c.appendLocked(toChatMessage(*resp.FirstAIMessage))
	default:
		c.logger.Warn("History hydration failed", "dialog_id", id, "error", herr)
	}

	if herr == nil && !history.IsActive() {
		c.setPhaseLocked(domain.PhaseTerminated)
		return nil
	}
	c.setPhaseLocked(domain.PhaseActive)
	c.armTimerLocked(nil)
	return nil
}

// Resume attaches an Idle controller to an existing backend dialog, hydrating
// its history. startedAt restores the timed-mode clock of the original
// session; nil starts it now. A dialog the backend no longer considers active
// comes up Terminated.
func (c *Controller) Resume(ctx context.Context, dialogID int64, startedAt *time.Time) error {
	c.mu.Lock()
	if c.closed || c.session.Phase != domain.PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	c.notice = nil
	c.setPhaseLocked(domain.PhaseStarting)
	gen := c.generation
	c.mu.Unlock()

	history, err := c.backend.Messages(ctx, dialogID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		c.setPhaseLocked(domain.PhaseIdle)
		return c.failLocked(&Failure{Kind: KindStartFailure, Op: "resume", Err: err})
	}

	id := dialogID
	c.session.ID = &id
	c.hydrateLocked(history)
	if !history.IsActive() {
		c.setPhaseLocked(domain.PhaseTerminated)
		return nil
	}
	c.setPhaseLocked(domain.PhaseActive)
	c.armTimerLocked(startedAt)
	c.logger.Info("Dialog resumed", "dialog_id", id, "messages", c.log.Len())
	return nil
}

func (c *Controller) hydrateLocked(h *backend.History) {
	msgs := make([]domain.ChatMessage, 0, len(h.Messages))
	for _, m := range h.Messages {
		msgs = append(msgs, toChatMessage(m))
	}
	c.log.Replace(msgs)
	c.emitLocked(Event{Kind: EventHistoryLoaded, Messages: c.log.Snapshot()})
}

// Finish ends the session. In timed mode the clock is frozen and the
// whole-second duration is reported to the backend first; then the finish
// phrase is exchanged to obtain the analysis. A second call surfaces
// AlreadyFinished without touching the recorded end time.
func (c *Controller) Finish(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	switch c.session.Phase {
	case domain.PhaseActive:
	case domain.PhaseFinishing, domain.PhaseTerminated:
		defer c.mu.Unlock()
		return c.failLocked(&Failure{Kind: KindAlreadyFinished, Op: "finish", Err: errFinishedLocally})
	default:
		c.mu.Unlock()
		return nil
	}
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}

	id := c.dialogIDLocked()
	duration, timed := c.stopTimerLocked()
	c.notice = nil
	c.setPhaseLocked(domain.PhaseFinishing)
	gen := c.generation
	c.mu.Unlock()

	if timed {
		resp, err := c.backend.Finish(ctx, id, duration)

		c.mu.Lock()
		if c.staleLocked(gen) {
			c.mu.Unlock()
			return nil
		}
		if err != nil {
			defer c.mu.Unlock()
			if errors.Is(err, backend.ErrAlreadyFinished) {
				c.setPhaseLocked(domain.PhaseTerminated)
				return c.failLocked(&Failure{Kind: KindAlreadyFinished, Op: "finish", Err: err})
			}
			c.setPhaseLocked(domain.PhaseActive)
			return c.failLocked(&Failure{Kind: KindFinishFailure, Op: "finish", Err: err})
		}
		c.logger.Info("Dialog finish reported", "dialog_id", id, "duration_s", *duration)
		if resp.Analysis != "" {
			c.applyAnalysisLocked(backend.AnalysisReply{Text: resp.Analysis, Achievements: resp.NewAchievements})
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
	}

	return c.exchange(ctx, c.finishPhrase, domain.PhaseFinishing)
}

func toChatMessage(m backend.WireMessage) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.ParseRole(m.Sender), Text: m.Text}
}
