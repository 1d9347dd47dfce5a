// Package sweeper removes dialog bindings that have outlived their TTL.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner deletes bindings not updated within ttl.
type Cleaner interface {
	CleanupStaleBindings(ctx context.Context, ttl time.Duration) (int64, error)
}

// Sweeper periodically purges stale bindings so reconnecting tabs never
// resume a dialog the backend has long forgotten.
type Sweeper struct {
	repo     Cleaner
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// New creates a sweeper. A nil logger uses slog.Default().
func New(repo Cleaner, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{repo: repo, ttl: ttl, interval: interval, logger: logger}
}

// Start runs the sweeper on a background goroutine until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("Binding sweeper started", "interval", s.interval, "ttl", s.ttl)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("Binding sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}

// Sweep performs a single cleanup pass and returns the number of removed
// bindings.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	deleted, err := s.repo.CleanupStaleBindings(ctx, s.ttl)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("Binding sweep interrupted", "error", err)
			return 0
		}
		s.logger.Error("Binding sweep failed", "error", err)
		return 0
	}
	if deleted > 0 {
		s.logger.Info("Binding sweep removed stale bindings", "count", deleted)
	}
	return deleted
}
