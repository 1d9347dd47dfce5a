// Package transcript writes per-dialog NDJSON transcripts asynchronously.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls transcript output.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Entry is one line of a dialog transcript.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"ts"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id,omitempty"`
	DialogID    int64     `json:"dialog_id"`
	EventType   string    `json:"event_type"`
	Role        string    `json:"role,omitempty"`
	Text        string    `json:"text,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Achievement string    `json:"achievement,omitempty"`
	Elapsed     int       `json:"elapsed_s,omitempty"`
}

// Logger records transcript entries. Log must never block the caller.
type Logger interface {
	Log(Entry)
	Close() error
}

// Noop discards every entry.
type Noop struct{}

// Log implements Logger.
func (Noop) Log(Entry) {}

// Close implements Logger.
func (Noop) Close() error { return nil }

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Writer appends entries to <dir>/<user>/<dialog>.ndjson from a single
// background goroutine fed by a bounded queue. Entries that do not fit in
// the queue are dropped and counted.
type Writer struct {
	dir    string
	queue  chan Entry
	logger *slog.Logger

	files   map[string]*os.File
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// New returns a Noop logger when cfg is disabled, otherwise a running Writer.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewWriter(cfg, logger)
}

// NewWriter creates the transcript directory and starts the writer goroutine.
func NewWriter(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	w := &Writer{
		dir:    cfg.Dir,
		queue:  make(chan Entry, cfg.QueueSize),
		logger: logger,
		files:  make(map[string]*os.File),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Log enqueues e without blocking.
func (w *Writer) Log(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- e:
	default:
		if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
			w.logger.Warn("Transcript queue full, dropping entries", "dropped", n)
		}
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Close flushes queued entries and closes all open files.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
	<-w.done
	return nil
}

func (w *Writer) run() {
	defer close(w.done)
	defer w.closeFiles()

	for e := range w.queue {
		if err := w.write(e); err != nil {
			w.logger.Warn("Failed to write transcript entry", "user_id", e.UserID, "dialog_id", e.DialogID, "error", err)
		}
	}
}

func (w *Writer) write(e Entry) error {
	f, err := w.file(e.UserID, e.DialogID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (w *Writer) file(userID string, dialogID int64) (*os.File, error) {
	path := Path(w.dir, userID, dialogID)
	if f, ok := w.files[path]; ok {
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create user directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	w.files[path] = f
	return f, nil
}

func (w *Writer) closeFiles() {
	for path, f := range w.files {
		if err := f.Close(); err != nil {
			w.logger.Debug("Failed to close transcript", "path", path, "error", err)
		}
	}
	w.files = nil
}

// Path returns the transcript file for a user's dialog.
func Path(dir, userID string, dialogID int64) string {
	user := unsafePathChars.ReplaceAllString(userID, "_")
	if user == "" {
		user = "unknown"
	}
	return filepath.Join(dir, user, strconv.FormatInt(dialogID, 10)+".ndjson")
}
