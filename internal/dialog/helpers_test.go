package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dialog-trainer/internal/backend"
	"github.com/ashureev/dialog-trainer/internal/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sendResult struct {
	reply backend.Reply
	err   error
}

type fakeBackend struct {
	mu sync.Mutex

	startResp  *backend.StartResponse
	startErr   error
	history    *backend.History
	historyErr error
	replies    []sendResult
	finishResp *backend.FinishResponse
	finishErr  error

	startGate chan struct{}
	sendGate  chan struct{}

	startCalls  int
	sendTexts   []string
	finishCalls []*int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		startResp:  &backend.StartResponse{DialogID: 7},
		history:    &backend.History{DialogID: 7, Status: backend.StatusActive},
		finishResp: &backend.FinishResponse{},
	}
}

func (f *fakeBackend) queue(reply backend.Reply, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sendResult{reply: reply, err: err})
}

func (f *fakeBackend) Start(ctx context.Context, _ int64) (*backend.StartResponse, error) {
	f.mu.Lock()
	f.startCalls++
	gate := f.startGate
	resp, err := f.startResp, f.startErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, err
}

func (f *fakeBackend) Messages(_ context.Context, _ int64) (*backend.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	h := *f.history
	h.Messages = append([]backend.WireMessage(nil), f.history.Messages...)
	return &h, nil
}

func (f *fakeBackend) Send(ctx context.Context, _ int64, text string) (backend.Reply, error) {
	f.mu.Lock()
	f.sendTexts = append(f.sendTexts, text)
	gate := f.sendGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return nil, errors.New("no reply queued")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.reply, r.err
}

func (f *fakeBackend) Finish(_ context.Context, _ int64, duration *int) (*backend.FinishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var d *int
	if duration != nil {
		v := *duration
		d = &v
	}
	f.finishCalls = append(f.finishCalls, d)
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	return f.finishResp, nil
}

func (f *fakeBackend) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sendTexts...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newTestController(t *testing.T, b Backend, opts Options) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	if opts.Observer == nil {
		opts.Observer = rec
	}
	if opts.Scenario.ID == 0 {
		opts.Scenario = domain.ScenarioRef{ID: 42}
	}
	c := NewController(b, opts)
	t.Cleanup(c.Close)
	return c, rec
}

func mustStart(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := c.Session().Phase; got != domain.PhaseActive {
		t.Fatalf("expected phase active after start, got %s", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}
