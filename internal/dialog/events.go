package dialog

import (
	"time"

	"github.com/ashureev/dialog-trainer/internal/domain"
)

// EventKind names a controller event.
type EventKind string

const (
	EventMessageAppended  EventKind = "message_appended"
	EventMessageConfirmed EventKind = "message_confirmed"
	EventHistoryLoaded    EventKind = "history_loaded"
	EventPhaseChanged     EventKind = "phase_changed"
	EventBusy             EventKind = "busy"
	EventTimerTick        EventKind = "timer_tick"
	EventTimerStopped     EventKind = "timer_stopped"
	EventAnalysis         EventKind = "analysis"
	EventAchievement      EventKind = "achievement"
	EventNotice           EventKind = "notice"
)

// Event is emitted by the Controller whenever user-visible state changes.
type Event struct {
	Kind        EventKind              `json:"type"`
	DialogID    int64                  `json:"dialog_id,omitempty"`
	Index       int                    `json:"index"`
	Message     *domain.ChatMessage    `json:"message,omitempty"`
	Messages    []domain.ChatMessage   `json:"messages,omitempty"`
	Phase       domain.Phase           `json:"phase,omitempty"`
	Busy        bool                   `json:"busy,omitempty"`
	Elapsed     int                    `json:"elapsed,omitempty"`
	Analysis    *domain.AnalysisResult `json:"analysis,omitempty"`
	Achievement string                 `json:"achievement,omitempty"`
	Notice      *Notice                `json:"notice,omitempty"`
	At          time.Time              `json:"at"`
}

// Observer receives controller events. Notify is called in event order while
// the controller's state is locked: it must return quickly and must not call
// back into the Controller.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Notify calls f(ev).
func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Observers fans events out to several observers in order.
type Observers []Observer

// Notify delivers ev to every non-nil observer.
func (o Observers) Notify(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(ev)
		}
	}
}

type noopObserver struct{}

func (noopObserver) Notify(Event) {}
