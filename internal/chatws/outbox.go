package chatws

import (
	"sync/atomic"

	"github.com/ashureev/dialog-trainer/internal/dialog"
)

const outboxSize = 256

// outbox buffers frames for the single connection writer. Push never blocks:
// when the buffer is full the frame is dropped and the writer is asked to
// resynchronise the browser with a snapshot.
type outbox struct {
	frames chan any
	wake   chan struct{}
	resync atomic.Bool
}

func newOutbox(size int) *outbox {
	return &outbox{
		frames: make(chan any, size),
		wake:   make(chan struct{}, 1),
	}
}

// Notify implements dialog.Observer.
func (o *outbox) Notify(ev dialog.Event) {
	o.push(ev)
}

func (o *outbox) push(frame any) {
	select {
	case o.frames <- frame:
	default:
		o.resync.Store(true)
		select {
		case o.wake <- struct{}{}:
		default:
		}
	}
}

// needsResync reports and clears the pending resync request.
func (o *outbox) needsResync() bool {
	return o.resync.Swap(false)
}
