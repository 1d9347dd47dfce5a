package dialog

import (
	"time"

	"github.com/ashureev/dialog-trainer/internal/domain"
)

// DefaultTickInterval is how often elapsed time is republished for display.
const DefaultTickInterval = time.Second

// Clock abstracts wall-clock reads so tests control elapsed time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tracker measures a timed session: Stopped -> Running -> Stopped(final).
//
// The interval only republishes elapsed time; durations are always derived
// from the captured bounds, never from tick counts. Tracker is not safe for
// concurrent use; the Controller serializes access, and the tick goroutine
// only signals through onTick.
type Tracker struct {
	clock    Clock
	interval time.Duration
	state    domain.TimerState

	stop    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewTracker creates a stopped tracker.
func NewTracker(clock Clock, interval time.Duration) *Tracker {
	if clock == nil {
		clock = systemClock{}
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Tracker{clock: clock, interval: interval}
}

// Start captures startedAt and launches the display interval. It returns
// false if the tracker was already started.
func (t *Tracker) Start(onTick func()) bool {
	return t.StartAt(t.clock.Now(), onTick)
}

// StartAt is Start with an explicit start time, used when resuming a session
// whose clock began before this tracker existed.
func (t *Tracker) StartAt(at time.Time, onTick func()) bool {
	if t.state.StartedAt != nil {
		return false
	}
	t.state.StartedAt = &at

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stop, t.done, onTick)
	return true
}

func (t *Tracker) run(stop <-chan struct{}, done chan<- struct{}, onTick func()) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if onTick != nil {
				onTick()
			}
		}
	}
}

// Stop captures endedAt, halts the interval and returns the whole-second
// duration. endedAt is only ever set once; later calls return the duration
// of the first stop. The bool is false if the tracker never started.
func (t *Tracker) Stop() (int, bool) {
	if t.state.StartedAt == nil {
		return 0, false
	}
	if t.state.EndedAt == nil {
		now := t.clock.Now()
		t.state.EndedAt = &now
	}
	t.halt()
	d, _ := t.state.Duration()
	return d, true
}

// halt stops the interval without recording an end time.
func (t *Tracker) halt() {
	if t.stop == nil || t.stopped {
		return
	}
	t.stopped = true
	close(t.stop)
}

// Wait blocks until the interval goroutine has exited. It must not be called
// while holding a lock that onTick acquires.
func (t *Tracker) Wait() {
	if t.done != nil {
		<-t.done
	}
}

// Running reports whether the tracker started and has not been stopped.
func (t *Tracker) Running() bool {
	return t.state.StartedAt != nil && t.state.EndedAt == nil && !t.stopped
}

// Elapsed returns whole seconds since start, frozen once endedAt is set.
func (t *Tracker) Elapsed() int {
	if t.state.StartedAt == nil {
		return 0
	}
	if d, ok := t.state.Duration(); ok {
		return d
	}
	d := t.clock.Now().Sub(*t.state.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// State returns a copy of the timer bounds.
func (t *Tracker) State() domain.TimerState {
	var out domain.TimerState
	if t.state.StartedAt != nil {
		s := *t.state.StartedAt
		out.StartedAt = &s
	}
	if t.state.EndedAt != nil {
		e := *t.state.EndedAt
		out.EndedAt = &e
	}
	return out
}
