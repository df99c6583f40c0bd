package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed remote call. Callers branch on the kind,
// never on the concrete transport error underneath.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindVersion     ErrorKind = "version"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindTransport   ErrorKind = "transport"
	KindRemote      ErrorKind = "remote"
)

// Error is the result every adapter call wraps its failures in.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s error: status=%d message=%s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the kind of err, or KindTransport for anything that is
// not a remote.Error.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransport
}

func newError(kind ErrorKind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, cause: cause}
}
