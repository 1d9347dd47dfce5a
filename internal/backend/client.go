package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// maxResponseBodySize caps how much of a backend response is read (1MB).
const maxResponseBodySize = 1 << 20

// RequestIDHeader carries the correlation id of each backend request.
const RequestIDHeader = "X-Request-ID"

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000/api/chat",
		Timeout: 90 * time.Second,
	}
}

// Client talks to the training backend on behalf of one credential holder.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a backend client. Every request carries the bearer token
// produced by ts; the client never refreshes or stores it. A nil ts sends
// unauthenticated requests.
func NewClient(cfg Config, ts oauth2.TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	var transport http.RoundTripper = http.DefaultTransport
	if ts != nil {
		transport = &oauth2.Transport{Source: ts, Base: http.DefaultTransport}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// StaticToken returns a token source that always yields the given access token.
func StaticToken(accessToken string) oauth2.TokenSource {
	if accessToken == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// Start creates (or reopens) a dialog for the scenario.
func (c *Client) Start(ctx context.Context, scenarioID int64) (*StartResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/session/start", startRequest{ScenarioID: scenarioID})
	if err != nil {
		return nil, err
	}
	if err := statusErr(status, body); err != nil {
		return nil, err
	}

	var resp StartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if resp.DialogID == 0 {
		return nil, fmt.Errorf("%w: missing dialog_id", ErrUnrecognizedReply)
	}
	return &resp, nil
}

// Messages fetches the recorded history of a dialog.
func (c *Client) Messages(ctx context.Context, dialogID int64) (*History, error) {
	status, body, err := c.do(ctx, http.MethodGet, sessionPath(dialogID, "messages"), nil)
	if err != nil {
		return nil, err
	}
	if err := statusErr(status, body); err != nil {
		return nil, err
	}

	var h History
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return &h, nil
}

// Send posts a user message and classifies the reply. Error envelopes are
// returned as ErrorReply regardless of HTTP status; only a rejected
// credential is reported as an error.
func (c *Client) Send(ctx context.Context, dialogID int64, text string) (Reply, error) {
	status, body, err := c.do(ctx, http.MethodPost, sessionPath(dialogID, "message"), messageRequest{Message: text})
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, fmt.Errorf("send message: %w", ErrUnauthorized)
	}
	if status >= http.StatusBadRequest {
		c.logger.Warn("Backend message request failed", "dialog_id", dialogID, "status", status)
	}
	return DecodeReply(body)
}

// Finish notifies the backend that the dialog is over. Duration is reported
// in whole seconds and omitted when nil.
func (c *Client) Finish(ctx context.Context, dialogID int64, duration *int) (*FinishResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, sessionPath(dialogID, "finish"), finishRequest{Duration: duration})
	if err != nil {
		return nil, err
	}
	if err := statusErr(status, body); err != nil {
		return nil, err
	}

	var resp FinishResponse
	if len(bytes.TrimSpace(body)) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Debug("Ignoring non-JSON finish body", "dialog_id", dialogID, "error", err)
		return &FinishResponse{}, nil
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close backend response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("Backend request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode, body, nil
}

// statusErr converts a non-2xx response into an error.
func statusErr(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	se := &StatusError{Status: status, Message: eb.Error, Code: eb.Code}
	if isAlreadyFinished(eb.Code, eb.Error) {
		return fmt.Errorf("%w: %w", ErrAlreadyFinished, se)
	}
	return se
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

func sessionPath(dialogID int64, action string) string {
	return "/session/" + strconv.FormatInt(dialogID, 10) + "/" + action
}
