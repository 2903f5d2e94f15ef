package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeIncomplete  ErrorType = "incomplete"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeLocalIO     ErrorType = "local_io"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an API or transfer error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap creates a typed error wrapping an underlying cause
func Wrap(errorType ErrorType, message string, err error) *Error {
	return &Error{Type: errorType, Message: message, Err: err}
}

// FromStatusCode builds a typed error from an HTTP response status
func FromStatusCode(statusCode int, message string) *Error {
	var errorType ErrorType
	switch {
	case statusCode == 429:
		errorType = ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		errorType = ErrorTypeAuth
	case statusCode == 404:
		errorType = ErrorTypeNotFound
	case statusCode >= 500:
		errorType = ErrorTypeServerError
	default:
		errorType = ErrorTypeUnknown
	}
	return &Error{Type: errorType, Message: message, Code: statusCode}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown for untyped errors
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeIncomplete:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeCancelled, ErrorTypeLocalIO:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// RetryLaterPredicate decides whether a failed file transfer should be
// queued for a second pass instead of being reported as permanently failed.
type RetryLaterPredicate func(err error) bool

// DefaultRetryLater treats truncated response bodies, timeouts and
// connection failures as recoverable in a later pass. HTTP rejections stay
// permanent.
func DefaultRetryLater(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type == ErrorTypeIncomplete || typed.Type == ErrorTypeNetwork
	}
	return false
}
