package chatws

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/dialog-trainer/internal/dialog"
	"github.com/ashureev/dialog-trainer/internal/domain"
	"github.com/ashureev/dialog-trainer/internal/transcript"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

// connection is the per-socket state: at most one dialog controller, bound
// to one scenario at a time.
type connection struct {
	h         *Handler
	ws        *websocket.Conn
	userID    string
	sessionID string
	backend   dialog.Backend
	out       *outbox
	group     *errgroup.Group
	logger    *slog.Logger

	// startMu serialises start commands so a tab never creates two dialogs.
	startMu sync.Mutex

	mu         sync.Mutex
	ctrl       *dialog.Controller
	scenarioID int64
	bound      int64
	ended      bool
}

func (c *connection) controller() *dialog.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl
}

func (c *connection) close() {
	c.mu.Lock()
	ctrl := c.ctrl
	c.ctrl = nil
	c.mu.Unlock()
	if ctrl != nil {
		ctrl.Close()
	}
}

// dispatch handles one inbound frame. Commands that reach the backend run on
// their own goroutine so the read loop keeps serving pings.
func (c *connection) dispatch(ctx context.Context, f inboundFrame) {
	switch f.Type {
	case framePing:
		c.out.push(pongFrame{Type: framePong})
		return
	case frameStart:
		if f.ScenarioID <= 0 {
			c.out.push(newError(codeBadFrame, "scenario_id is required"))
			return
		}
		c.group.Go(func() error {
			c.start(ctx, f.ScenarioID, f.TimedMode)
			return nil
		})
	case frameSend:
		if strings.TrimSpace(f.Text) == "" {
			return
		}
		if c.h.limiter != nil && !c.h.limiter.Allow(c.userID) {
			c.out.push(newError(codeRateLimited, "too many messages, slow down"))
			return
		}
		ctrl := c.controller()
		if ctrl == nil {
			c.out.push(newError(codeNoDialog, "no dialog started"))
			return
		}
		c.group.Go(func() error {
			_ = ctrl.Send(ctx, f.Text)
			c.syncBinding(ctx, ctrl)
			return nil
		})
	case frameFinish:
		ctrl := c.controller()
		if ctrl == nil {
			c.out.push(newError(codeNoDialog, "no dialog started"))
			return
		}
		c.group.Go(func() error {
			if err := ctrl.Finish(ctx); errors.Is(err, dialog.ErrBusy) {
				c.out.push(newError(codeBusy, "wait for the reply before finishing"))
			}
			c.syncBinding(ctx, ctrl)
			return nil
		})
	case frameReset:
		if ctrl := c.controller(); ctrl != nil {
			ctrl.Reset()
		}
	case frameDismiss:
		if ctrl := c.controller(); ctrl != nil {
			ctrl.DismissNotice()
		}
	case frameSnapshot:
		if ctrl := c.controller(); ctrl != nil {
			c.out.push(newSnapshot(ctrl))
		}
	default:
		c.out.push(newError(codeUnknownType, "unknown frame type "+f.Type))
		return
	}

	c.group.Go(func() error {
		c.touch(ctx)
		return nil
	})
}

// start attaches the connection to a dialog for scenarioID: the open dialog
// the tab was bound to if the backend still has it, otherwise a new one.
func (c *connection) start(ctx context.Context, scenarioID int64, timed bool) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	ctrl := c.controller()
	if ctrl != nil && c.currentScenario() == scenarioID {
		switch ctrl.Session().Phase {
		case domain.PhaseIdle:
		case domain.PhaseTerminated:
			ctrl.Reset()
		default:
			c.out.push(newSnapshot(ctrl))
			return
		}
		c.startFresh(ctx, ctrl)
		return
	}

	binding := c.lookupBinding(ctx, scenarioID)
	if binding != nil {
		timed = binding.TimedMode
	}
	ctrl = c.replaceController(scenarioID, timed)

	if binding != nil && c.resume(ctx, ctrl, binding) {
		return
	}
	c.startFresh(ctx, ctrl)
}

func (c *connection) startFresh(ctx context.Context, ctrl *dialog.Controller) {
	if err := ctrl.Start(ctx); err != nil {
		return
	}
	c.syncBinding(ctx, ctrl)
	c.out.push(newSnapshot(ctrl))
}

// resume reports whether the bound dialog could be continued.
func (c *connection) resume(ctx context.Context, ctrl *dialog.Controller, b *domain.DialogBinding) bool {
	var startedAt *time.Time
	if b.TimedMode {
		s := b.StartedAt
		startedAt = &s
	}
	if err := ctrl.Resume(ctx, b.DialogID, startedAt); err != nil {
		c.logger.Warn("Failed to resume dialog, starting a new one", "dialog_id", b.DialogID, "error", err)
		ctrl.Reset()
		return false
	}

	c.mu.Lock()
	c.bound = b.DialogID
	c.ended = false
	c.mu.Unlock()

	if ctrl.Session().Phase == domain.PhaseTerminated {
		c.syncBinding(ctx, ctrl)
		ctrl.Reset()
		return false
	}
	c.logger.Info("Dialog resumed", "dialog_id", b.DialogID)
	c.out.push(newSnapshot(ctrl))
	return true
}

func (c *connection) currentScenario() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scenarioID
}

func (c *connection) replaceController(scenarioID int64, timed bool) *dialog.Controller {
	ctrl := dialog.NewController(c.backend, dialog.Options{
		Scenario:     domain.ScenarioRef{ID: scenarioID},
		TimedMode:    timed,
		FinishPhrase: c.h.opts.FinishPhrase,
		TickInterval: c.h.opts.TickInterval,
		Observer:     dialog.Observers{c.out, c.transcriptObserver()},
		Logger:       c.logger.With("scenario_id", scenarioID),
	})

	c.mu.Lock()
	old := c.ctrl
	c.ctrl = ctrl
	c.scenarioID = scenarioID
	c.bound = 0
	c.ended = false
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return ctrl
}

func (c *connection) lookupBinding(ctx context.Context, scenarioID int64) *domain.DialogBinding {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	b, err := c.h.bindings.GetActiveBinding(sctx, c.userID, c.sessionID, scenarioID)
	if err != nil {
		c.logger.Warn("Failed to load dialog binding", "scenario_id", scenarioID, "error", err)
		return nil
	}
	if b == nil || !b.IsOpen() {
		return nil
	}
	return b
}

// syncBinding persists a newly started dialog and marks it ended once it
// terminates.
func (c *connection) syncBinding(ctx context.Context, ctrl *dialog.Controller) {
	session := ctrl.Session()
	id, ok := session.DialogID()
	if !ok {
		return
	}

	c.mu.Lock()
	if c.ctrl != ctrl {
		c.mu.Unlock()
		return
	}
	isNew := c.bound != id
	markEnded := session.Phase == domain.PhaseTerminated && (isNew || !c.ended)
	c.bound = id
	if markEnded {
		c.ended = true
	}
	c.mu.Unlock()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	timer := ctrl.Timer()
	if isNew {
		startedAt := time.Now()
		if timer.StartedAt != nil {
			startedAt = *timer.StartedAt
		}
		err := c.h.bindings.UpsertBinding(sctx, &domain.DialogBinding{
			UserID:     c.userID,
			SessionID:  c.sessionID,
			ScenarioID: session.Scenario.ID,
			DialogID:   id,
			TimedMode:  session.TimedMode,
			Phase:      session.Phase,
			StartedAt:  startedAt,
		})
		if err != nil {
			c.logger.Warn("Failed to persist dialog binding", "dialog_id", id, "error", err)
		}
	}
	if markEnded {
		endedAt := time.Now()
		if timer.EndedAt != nil {
			endedAt = *timer.EndedAt
		}
		if err := c.h.bindings.MarkBindingEnded(sctx, c.userID, id, endedAt); err != nil {
			c.logger.Warn("Failed to mark dialog binding ended", "dialog_id", id, "error", err)
		}
	}
}

func (c *connection) touch(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := c.h.bindings.UpdateLastSeen(sctx, c.userID, time.Now()); err != nil {
		c.logger.Debug("Failed to update last seen", "error", err)
	}
}

func (c *connection) transcriptObserver() dialog.Observer {
	tl := c.h.transcript
	userID, sessionID := c.userID, c.sessionID
	return dialog.ObserverFunc(func(ev dialog.Event) {
		if e, ok := transcriptEntry(userID, sessionID, ev); ok {
			tl.Log(e)
		}
	})
}

// transcriptEntry maps the controller events worth keeping onto a
// transcript line.
func transcriptEntry(userID, sessionID string, ev dialog.Event) (transcript.Entry, bool) {
	if ev.DialogID == 0 {
		return transcript.Entry{}, false
	}
	e := transcript.Entry{
		Timestamp: ev.At,
		UserID:    userID,
		SessionID: sessionID,
		DialogID:  ev.DialogID,
		EventType: string(ev.Kind),
	}
	switch ev.Kind {
	case dialog.EventMessageAppended:
		if ev.Message == nil {
			return transcript.Entry{}, false
		}
		e.Role = string(ev.Message.Role)
		e.Text = ev.Message.Text
	case dialog.EventPhaseChanged:
		e.Phase = string(ev.Phase)
	case dialog.EventTimerStopped:
		e.Elapsed = ev.Elapsed
	case dialog.EventAchievement:
		e.Achievement = ev.Achievement
	case dialog.EventNotice:
		if ev.Notice != nil {
			e.Text = string(ev.Notice.Kind) + ": " + ev.Notice.Message
		}
	default:
		return transcript.Entry{}, false
	}
	return e, true
}
