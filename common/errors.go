package common

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ValidationError is returned when a caller breaks an operation's contract.
// It is detected before any request is sent.
type ValidationError struct {
	Op      string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed: %s: %s (got %v)", e.Op, e.Message, e.Value)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Op, e.Message)
}

// ProtocolError is returned when a successful response does not have the
// shape the operation expects.
type ProtocolError struct {
	Path    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unexpected response: %s", e.Message)
	}
	return fmt.Sprintf("unexpected response from %s: %s", e.Path, e.Message)
}

// TransportError carries failures reported by the backend: network errors,
// non-2xx statuses and store-side rejections.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
}

// Unwrap returns the underlying network error, if any.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Temporary reports whether the failure may succeed on another attempt.
func (e *TransportError) Temporary() bool {
	return e.Cause != nil || e.StatusCode >= http.StatusInternalServerError
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsProtocol reports whether err is or wraps a ProtocolError.
func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsNotFound reports whether the store answered 404.
func IsNotFound(err error) bool {
	var target *TransportError
	return errors.As(err, &target) && target.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var target *TransportError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}
