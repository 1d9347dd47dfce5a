package transcript

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriterAppendsPerDialogNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWriter(Config{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	w.Log(Entry{UserID: "anon_1", DialogID: 7, EventType: "message_appended", Role: "user", Text: "Hello"})
	w.Log(Entry{UserID: "anon_1", DialogID: 7, EventType: "message_appended", Role: "assistant", Text: "Hi!"})
	w.Log(Entry{UserID: "anon_1", DialogID: 8, EventType: "phase_changed", Phase: "active"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "anon_1", "7.ndjson"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got Entry
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatalf("failed to unmarshal line: %v", err)
	}
	if got.Text != "Hi!" || got.Role != "assistant" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.ID == "" || got.Timestamp.IsZero() {
		t.Fatal("expected id and timestamp to be populated")
	}

	if lines := readLines(t, filepath.Join(dir, "anon_1", "8.ndjson")); len(lines) != 1 {
		t.Fatalf("expected 1 line for dialog 8, got %d", len(lines))
	}
}

func TestWriterIgnoresLogAfterClose(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(Config{Enabled: true, Dir: t.TempDir(), QueueSize: 1}, nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	w.Log(Entry{UserID: "u", DialogID: 1})
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	t.Parallel()

	l, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := l.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", l)
	}
}

func TestPathSanitizesUserID(t *testing.T) {
	t.Parallel()

	got := Path("/logs", "../../etc", 3)
	if strings.Contains(got, "..") {
		t.Fatalf("expected traversal to be neutralised, got %q", got)
	}
	if filepath.Base(got) != "3.ndjson" {
		t.Fatalf("unexpected file name in %q", got)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
