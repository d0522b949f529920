package messaging

import (
	"errors"
	"fmt"
)

// Error codes carried by ErrorReply.
const (
	CodeCaptureDenied = "capture-denied"
	CodeNoReceiver    = "no-receiver"
	CodeRejected      = "rejected"
	CodeUnsupported   = "unsupported"
	CodeInternal      = "internal"
)

var (
	// ErrNoReceiver is returned when the destination context is not
	// attached to the bus (for example, the popup was closed)
	ErrNoReceiver = errors.New("no receiver for message")
	// ErrClosed is returned when sending through a closed endpoint
	ErrClosed = errors.New("endpoint closed")
)

// RemoteError is a failure reported by the receiving context.
type RemoteError struct {
	Code    string
	Message string
}

// Reject builds a RemoteError for a handler to return.
func Reject(code, format string, args ...interface{}) *RemoteError {
	return &RemoteError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is(err, ErrNoReceiver) see through a relayed failure.
func (e *RemoteError) Unwrap() error {
	if e.Code == CodeNoReceiver {
		return ErrNoReceiver
	}
	return nil
}

// HasCode reports whether err is a RemoteError with the given code.
func HasCode(err error, code string) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == code
}

// errorReplyFor converts a handler failure into the reply payload.
func errorReplyFor(err error) ErrorReply {
	var remote *RemoteError
	switch {
	case errors.As(err, &remote):
		return ErrorReply{Code: remote.Code, Message: remote.Message}
	case errors.Is(err, ErrNoReceiver):
		return ErrorReply{Code: CodeNoReceiver, Message: err.Error()}
	default:
		return ErrorReply{Code: CodeInternal, Message: err.Error()}
	}
}
