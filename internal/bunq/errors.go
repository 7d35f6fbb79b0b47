package bunq

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport matches every network or HTTP-level failure. These are
	// retryable by the caller; the client never retries on its own.
	ErrTransport = errors.New("bunq: transport failure")
	// ErrUnauthorized indicates the token or API key was rejected (401/403).
	ErrUnauthorized = errors.New("bunq: unauthorized")
	// ErrRateLimited indicates the API rate limit was hit (429).
	ErrRateLimited = errors.New("bunq: rate limited")

	// ErrSignature matches every server signature failure. A response that
	// fails verification is never returned to the caller.
	ErrSignature = errors.New("bunq: server signature check failed")
	// ErrMissingSignature means a signed response was expected but the header was absent.
	ErrMissingSignature = fmt.Errorf("%w: missing %s header", ErrSignature, headerServerSignature)
	// ErrSignatureMismatch means the signature did not verify against the trusted server key.
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrSignature)

	// ErrMalformedResponse means the payload does not have the expected shape.
	ErrMalformedResponse = errors.New("bunq: malformed response")
)

// TransportError wraps a failure to complete the HTTP round trip.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bunq: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap exposes both ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// StatusError is returned for HTTP status codes >= 400. API carries the
// server's error description when the body contained one.
type StatusError struct {
	StatusCode int
	API        *APIError
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("bunq: unexpected status %d", e.StatusCode)
	if e.API != nil {
		msg += ": " + strings.Join(e.API.Descriptions, "; ")
	}
	return msg
}

// Is lets callers test a StatusError against the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func (e *StatusError) Unwrap() error {
	if e.API == nil {
		return nil
	}
	return e.API
}

// APIError is a structured error payload returned by the server.
type APIError struct {
	Descriptions []string
}

func (e *APIError) Error() string {
	if len(e.Descriptions) == 0 {
		return "bunq: api error"
	}
	return "bunq: api error: " + strings.Join(e.Descriptions, "; ")
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
