package tunnelflight

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned while the circuit breaker considers the portal down.
var ErrUnavailable = errors.New("tunnelflight: portal unavailable")

// AuthError means a login failed outright, or the re-login after the portal
// invalidated the session failed.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tunnelflight: authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("tunnelflight: authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ConflictError is the portal answering a login with 409, meaning a stale
// session is still active server side.
type ConflictError struct{}

func (ConflictError) Error() string {
	return "tunnelflight: login conflict, a session is already active"
}

// HttpError is any non-2xx response that is not handled by the auth or
// conditional caching paths.
type HttpError struct {
	Endpoint string
	Status   int
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("tunnelflight: %s: unexpected status %d", e.Endpoint, e.Status)
}

// ParseError means a response body could not be decoded and carried no
// recognizable success marker.
type ParseError struct {
	Endpoint string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tunnelflight: %s: parse response: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SubmissionError is a write the portal answered but did not accept.
type SubmissionError struct {
	Message string
}

func (e *SubmissionError) Error() string {
	if e.Message == "" {
		return "tunnelflight: submission rejected"
	}
	return fmt.Sprintf("tunnelflight: submission rejected: %s", e.Message)
}
