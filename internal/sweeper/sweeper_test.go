package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakeCleaner struct {
	mu    sync.Mutex
	calls int
	ttl   time.Duration
	n     int64
	err   error
}

func (f *fakeCleaner) CleanupStaleBindings(_ context.Context, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ttl = ttl
	return f.n, f.err
}

func (f *fakeCleaner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweep(t *testing.T) {
	c := &fakeCleaner{n: 3}
	s := New(c, 24*time.Hour, time.Minute, nil)

	if got := s.Sweep(context.Background()); got != 3 {
		t.Fatalf("expected 3 removed, got %d", got)
	}
	if c.ttl != 24*time.Hour {
		t.Fatalf("expected ttl to be passed through, got %v", c.ttl)
	}

	c.err = errors.New("database is locked")
	if got := s.Sweep(context.Background()); got != 0 {
		t.Fatalf("expected 0 on error, got %d", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := &fakeCleaner{}
	s := New(c, time.Hour, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if c.count() < 2 {
		t.Fatalf("expected repeated sweeps, got %d", c.count())
	}
}
