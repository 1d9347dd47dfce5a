// Package dialog implements the dialogue session controller: it owns one
// training conversation from start to analysis, including the message log,
// the optimistic send protocol, the timed-mode clock and achievement delivery.
package dialog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/dialog-trainer/internal/backend"
	"github.com/ashureev/dialog-trainer/internal/domain"
)

// DefaultFinishPhrase is the message that asks the backend for the analysis.
const DefaultFinishPhrase = "ЗАВЕРШИТЬ СИМУЛЯЦИЮ"

// Backend is the remote training service the controller drives.
type Backend interface {
	Start(ctx context.Context, scenarioID int64) (*backend.StartResponse, error)
	Messages(ctx context.Context, dialogID int64) (*backend.History, error)
	Send(ctx context.Context, dialogID int64, text string) (backend.Reply, error)
	Finish(ctx context.Context, dialogID int64, duration *int) (*backend.FinishResponse, error)
}

// Ensure the HTTP client satisfies Backend.
var _ Backend = (*backend.Client)(nil)

// Options configures a Controller.
type Options struct {
	Scenario     domain.ScenarioRef
	TimedMode    bool
	FinishPhrase string
	Clock        Clock
	TickInterval time.Duration
	Observer     Observer
	Logger       *slog.Logger
}

// Controller owns a single dialog session. All methods are safe for
// concurrent use; state is mutated only under mu, and backend calls are made
// without holding it.
type Controller struct {
	backend      Backend
	observer     Observer
	logger       *slog.Logger
	clock        Clock
	tickInterval time.Duration
	finishPhrase string

	mu           sync.Mutex
	session      domain.DialogSession
	log          *Log
	timer        *Tracker
	achievements *AchievementChannel
	analysis     *domain.AnalysisResult
	notice       *Notice
	inflight     bool
	generation   uint64
	closed       bool
}

// NewController creates a controller in the Idle phase.
func NewController(b Backend, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.FinishPhrase == "" {
		opts.FinishPhrase = DefaultFinishPhrase
	}

	c := &Controller{
		backend:      b,
		observer:     opts.Observer,
		logger:       opts.Logger,
		clock:        opts.Clock,
		tickInterval: opts.TickInterval,
		finishPhrase: opts.FinishPhrase,
	}
	c.resetLocked(opts.Scenario, opts.TimedMode)
	return c
}

// resetLocked installs a fresh Idle session.
func (c *Controller) resetLocked(scenario domain.ScenarioRef, timed bool) {
	c.session = domain.DialogSession{
		Phase:     domain.PhaseIdle,
		Scenario:  scenario,
		TimedMode: timed,
	}
	c.log = NewLog()
	c.timer = NewTracker(c.clock, c.tickInterval)
	c.achievements = NewAchievementChannel()
	c.analysis = nil
	c.notice = nil
	c.inflight = false
}

// Reset discards the current conversation and returns to a fresh Idle
// session for the same scenario. Results of requests still in flight are
// discarded when they arrive.
func (c *Controller) Reset() {
	c.mu.Lock()
	old := c.timer
	old.halt()
	c.generation++
	c.resetLocked(c.session.Scenario, c.session.TimedMode)
	c.emitLocked(Event{Kind: EventPhaseChanged, Phase: domain.PhaseIdle})
	c.mu.Unlock()

	old.Wait()
}

// Close releases the timer interval. In-flight requests may still resolve;
// their results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	t := c.timer
	t.halt()
	c.mu.Unlock()

	t.Wait()
}

// Session returns a copy of the session record.
func (c *Controller) Session() domain.DialogSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s.ID != nil {
		id := *s.ID
		s.ID = &id
	}
	return s
}

// Messages returns a copy of the message log.
func (c *Controller) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Snapshot()
}

// Timer returns a copy of the timer bounds.
func (c *Controller) Timer() domain.TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer.State()
}

// Elapsed returns whole seconds since the timed session started.
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer.Elapsed()
}

// Busy reports whether a message exchange is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

// Analysis returns the terminal analysis, if one has arrived.
func (c *Controller) Analysis() *domain.AnalysisResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.analysis == nil {
		return nil
	}
	a := *c.analysis
	a.Achievements = append([]string(nil), c.analysis.Achievements...)
	return &a
}

// Achievements returns the achievement labels delivered in this session.
func (c *Controller) Achievements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.achievements.Delivered()
}

// Notice returns the current user-facing notice, if any.
func (c *Controller) Notice() *Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return nil
	}
	n := *c.notice
	return &n
}

// DismissNotice clears the current notice.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = nil
}

func (c *Controller) emitLocked(ev Event) {
	if id, ok := c.session.DialogID(); ok {
		ev.DialogID = id
	}
	if ev.At.IsZero() {
		ev.At = c.clock.Now()
	}
	c.observer.Notify(ev)
}

func (c *Controller) setPhaseLocked(p domain.Phase) {
	if c.session.Phase == p {
		return
	}
	c.session.Phase = p
	c.emitLocked(Event{Kind: EventPhaseChanged, Phase: p})
}

// failLocked records f as the current notice and returns it.
func (c *Controller) failLocked(f *Failure) error {
	n := noticeFor(f)
	c.notice = &n
	c.logger.Warn("Dialog operation failed", "op", f.Op, "kind", f.Kind, "dialog_id", c.dialogIDLocked(), "error", f.Err)
	c.emitLocked(Event{Kind: EventNotice, Notice: &n})
	return f
}

func (c *Controller) dialogIDLocked() int64 {
	id, _ := c.session.DialogID()
	return id
}

func (c *Controller) appendLocked(msg domain.ChatMessage) {
	idx := c.log.Append(msg)
	m := msg
	c.emitLocked(Event{Kind: EventMessageAppended, Index: idx, Message: &m})
}

func (c *Controller) confirmPendingLocked() {
	if idx, ok := c.log.Confirm(); ok {
		c.emitLocked(Event{Kind: EventMessageConfirmed, Index: idx})
	}
}

// armTimerLocked starts the timed-mode tracker on entering Active.
func (c *Controller) armTimerLocked(startedAt *time.Time) {
	if !c.session.TimedMode {
		return
	}
	gen := c.generation
	onTick := func() { c.tick(gen) }
	if startedAt != nil {
		c.timer.StartAt(*startedAt, onTick)
		return
	}
	c.timer.Start(onTick)
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || !c.timer.Running() {
		return
	}
	c.emitLocked(Event{Kind: EventTimerTick, Elapsed: c.timer.Elapsed()})
}

// stopTimerLocked freezes the tracker and returns the reported duration.
func (c *Controller) stopTimerLocked() (*int, bool) {
	wasRunning := c.timer.Running()
	d, ok := c.timer.Stop()
	if !ok {
		return nil, false
	}
	if wasRunning {
		c.emitLocked(Event{Kind: EventTimerStopped, Elapsed: d})
	}
	return &d, true
}

// stale reports whether a result captured under gen must be discarded.
func (c *Controller) staleLocked(gen uint64) bool {
	return c.closed || gen != c.generation
}
