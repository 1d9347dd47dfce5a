package backend

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is returned when the backend rejects the bearer credential.
	ErrUnauthorized = errors.New("backend rejected credential")
	// ErrAlreadyFinished is returned when the dialog was already finished.
	ErrAlreadyFinished = errors.New("dialog already finished")
	// ErrMalformedReply is returned when a response body is not valid JSON.
	ErrMalformedReply = errors.New("malformed backend reply")
	// ErrUnrecognizedReply is returned when a JSON reply matches no known shape.
	ErrUnrecognizedReply = errors.New("unrecognized backend reply")
)

// CodeAlreadyFinished is the structured error code for a duplicate finish.
const CodeAlreadyFinished = "already_finished"

// legacyAlreadyFinished lists message fragments emitted by backends that
// predate the structured code.
var legacyAlreadyFinished = []string{
	"уже заверш",
	"already finished",
}

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Status  int
	Message string
	Code    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// isAlreadyFinished classifies an error envelope as a duplicate finish.
func isAlreadyFinished(code, message string) bool {
	if code == CodeAlreadyFinished {
		return true
	}
	msg := strings.ToLower(message)
	for _, frag := range legacyAlreadyFinished {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
