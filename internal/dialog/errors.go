package dialog

import (
	"errors"
	"fmt"
)

// ErrBusy is returned by Finish while a message exchange is in flight.
var ErrBusy = errors.New("message exchange in flight")

// errFinishedLocally marks a finish rejected without a backend round trip.
var errFinishedLocally = errors.New("dialog is already finishing or finished")

// Kind classifies controller failures.
type Kind string

const (
	// KindStartFailure: the session could not be created; start may be retried.
	KindStartFailure Kind = "start_failure"
	// KindExchangeFailure: network or parse error during send; resend permitted.
	KindExchangeFailure Kind = "exchange_failure"
	// KindAnalysisUnavailable: the backend reported an error instead of a reply.
	KindAnalysisUnavailable Kind = "analysis_unavailable"
	// KindAlreadyFinished: duplicate finish; informational.
	KindAlreadyFinished Kind = "already_finished"
	// KindFinishFailure: the finish notification could not be delivered.
	KindFinishFailure Kind = "finish_failure"
)

// Failure is the error returned by controller operations.
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// Notice is the user-facing rendering of a failure.
type Notice struct {
	Kind        Kind   `json:"kind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func noticeFor(f *Failure) Notice {
	switch f.Kind {
	case KindStartFailure:
		return Notice{Kind: f.Kind, Message: "Could not start the session. Please try again.", Recoverable: true}
	case KindExchangeFailure:
		return Notice{Kind: f.Kind, Message: "The message could not be delivered. You can send it again.", Recoverable: true}
	case KindAnalysisUnavailable:
		return Notice{Kind: f.Kind, Message: "The dialog analysis is unavailable. Please try again later."}
	case KindAlreadyFinished:
		return Notice{Kind: f.Kind, Message: "The dialog has already been finished."}
	case KindFinishFailure:
		return Notice{Kind: f.Kind, Message: "Could not finish the dialog. Please try again.", Recoverable: true}
	default:
		return Notice{Kind: f.Kind, Message: "Unexpected error."}
	}
}
