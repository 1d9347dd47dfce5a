package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/dialog-trainer/internal/dialog"
	"github.com/ashureev/dialog-trainer/internal/domain"
	"github.com/ashureev/dialog-trainer/internal/identity"
	"github.com/ashureev/dialog-trainer/internal/transcript"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 10 * time.Second
	storeTimeout = 5 * time.Second
)

// Bindings persists which backend dialog each browser tab is attached to.
type Bindings interface {
	GetActiveBinding(ctx context.Context, userID, sessionID string, scenarioID int64) (*domain.DialogBinding, error)
	UpsertBinding(ctx context.Context, b *domain.DialogBinding) error
	MarkBindingEnded(ctx context.Context, userID string, dialogID int64, endedAt time.Time) error
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// BackendFactory builds a backend client acting with the browser's bearer
// credential.
type BackendFactory func(token string) dialog.Backend

// Options configures the Handler.
type Options struct {
	FinishPhrase  string
	TickInterval  time.Duration
	AllowedOrigin string
	IsDev         bool
	Logger        *slog.Logger
}

// Handler upgrades requests to WebSocket and runs one dialog controller per
// connection.
type Handler struct {
	bindings   Bindings
	backends   BackendFactory
	sm         *SessionManager
	limiter    *RateLimiter
	transcript transcript.Logger
	opts       Options
	logger     *slog.Logger
}

// NewHandler creates a new WebSocket chat handler.
func NewHandler(bindings Bindings, backends BackendFactory, sm *SessionManager, limiter *RateLimiter, tl transcript.Logger, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if tl == nil {
		tl = transcript.Noop{}
	}
	return &Handler{
		bindings:   bindings,
		backends:   backends,
		sm:         sm,
		limiter:    limiter,
		transcript: tl,
		opts:       opts,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	h.logger.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(readLimit)

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	conn := &connection{
		h:         h,
		ws:        ws,
		userID:    userID,
		sessionID: sessionID,
		backend:   h.backends(identity.CredentialFromContext(r.Context())),
		out:       newOutbox(outboxSize),
		group:     g,
		logger:    h.logger.With("user_id", userID, "session_id", sessionID),
	}
	defer conn.close()

	g.Go(func() error {
		defer cancel()
		return conn.readLoop(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return conn.writeLoop(gctx)
	})

	if err := g.Wait(); err != nil && !isClosed(err) {
		conn.logger.Warn("Chat session error", "error", err)
	}
	conn.logger.Info("Chat session ended")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

func (c *connection) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("WebSocket closed by client")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.out.push(newError(codeBadFrame, "frame is not valid JSON"))
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *connection) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-c.out.frames:
			if err := c.write(ctx, frame); err != nil {
				return err
			}
		case <-c.out.wake:
		}
		if c.out.needsResync() {
			if ctrl := c.controller(); ctrl != nil {
				if err := c.write(ctx, newSnapshot(ctrl)); err != nil {
					return err
				}
			}
		}
	}
}

func (c *connection) write(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to encode frame", "error", err)
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.ws.Write(wctx, websocket.MessageText, data); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1
}
