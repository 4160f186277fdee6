package registry

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind defines the normalized failure taxonomy for registry lookups.
type ErrorKind string

const (
	// KindRateLimited indicates the registry throttled the caller. Always retryable.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTimeout indicates the registry took too long to respond. Always retryable.
	KindTimeout ErrorKind = "timeout"

	// KindAPI covers every other registry failure: HTTP errors, network errors,
	// malformed payloads and registry-reported request errors.
	KindAPI ErrorKind = "api"
)

// Error wraps registry failures with a kind and a retry hint so callers can
// branch with errors.As instead of string matching.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int // 0 when no HTTP response was received
	Retryable  bool
	RetryAfter time.Duration // set for rate limits when the registry sent Retry-After
	Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry [%s]: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("registry [%s]: %s", e.Kind, e.Message)
}

// Unwrap supports error unwrapping
func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewRateLimitError reports a 429 from the registry.
func NewRateLimitError(message string, retryAfter time.Duration) *Error {
	if message == "" {
		message = "registry rate limit exceeded"
	}
	return &Error{
		Kind:       KindRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

// NewTimeoutError reports a lookup that exceeded the client's deadline.
func NewTimeoutError(timeout time.Duration, underlying error) *Error {
	return &Error{
		Kind:       KindTimeout,
		Message:    fmt.Sprintf("registry lookup timed out after %s", timeout),
		Retryable:  true,
		Underlying: underlying,
	}
}

// NewAPIError reports any other registry failure. It is retryable for network
// failures (status 0) and 5xx responses. A 429 is promoted to a rate-limit error.
func NewAPIError(status int, message string, underlying error) *Error {
	if status == http.StatusTooManyRequests {
		e := NewRateLimitError(message, 0)
		e.Underlying = underlying
		return e
	}
	return &Error{
		Kind:       KindAPI,
		Message:    message,
		StatusCode: status,
		Retryable:  status == 0 || status >= http.StatusInternalServerError,
		Underlying: underlying,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// KindOf extracts the error kind, or the empty kind for non-registry errors.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
