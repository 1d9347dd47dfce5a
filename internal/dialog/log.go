package dialog

import "github.com/ashureev/dialog-trainer/internal/domain"

// noPending marks a log without an outstanding optimistic entry.
const noPending = -1

// Log is the ordered list of exchanged messages. Entries are never reordered
// and only the Pending flag of the outstanding optimistic entry ever changes.
// Log is not safe for concurrent use; the Controller serializes access.
type Log struct {
	entries []domain.ChatMessage
	pending int
}

// NewLog creates an empty message log.
func NewLog() *Log {
	return &Log{pending: noPending}
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// AppendPending appends an optimistic user entry and returns its index.
// A previous outstanding entry, if any, is settled first.
func (l *Log) AppendPending(text string) int {
	l.Confirm()
	l.entries = append(l.entries, domain.ChatMessage{Role: domain.RoleUser, Text: text, Pending: true})
	l.pending = len(l.entries) - 1
	return l.pending
}

// Append appends a server-confirmed message and returns its index.
func (l *Log) Append(msg domain.ChatMessage) int {
	msg.Pending = false
	l.entries = append(l.entries, msg)
	return len(l.entries) - 1
}

// Confirm clears the Pending flag of the outstanding optimistic entry.
func (l *Log) Confirm() (int, bool) {
	if l.pending == noPending {
		return 0, false
	}
	idx := l.pending
	l.entries[idx].Pending = false
	l.pending = noPending
	return idx, true
}

// PendingIndex returns the index of the outstanding optimistic entry.
func (l *Log) PendingIndex() (int, bool) {
	if l.pending == noPending {
		return 0, false
	}
	return l.pending, true
}

// Replace swaps the whole log for hydrated history.
func (l *Log) Replace(msgs []domain.ChatMessage) {
	l.entries = make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		m.Pending = false
		l.entries = append(l.entries, m)
	}
	l.pending = noPending
}

// Snapshot returns a copy of the entries.
func (l *Log) Snapshot() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(l.entries))
	copy(out, l.entries)
	return out
}
