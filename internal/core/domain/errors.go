package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the session and cache subsystems.
var (
	// ErrUnauthorized indicates the backend rejected the current access token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSecretNotFound indicates a secret store key has no value.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrNoRefreshPath indicates a renewal was requested but no refresh
	// token is available, so there is no way to renew without a fresh sign-in.
	ErrNoRefreshPath = errors.New("no refresh token available")

	// ErrNoCurrentVersion indicates no AIRAC cycle has been recorded locally yet.
	ErrNoCurrentVersion = errors.New("no current AIRAC cycle recorded")
)

// SecretError wraps a secret store failure (store unavailable, I/O error).
type SecretError struct {
	Op  string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret store %s: %v", e.Op, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure (unreachable host, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-401 HTTP error response from the backend.
type ServerError struct {
	Code int
	Body string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.Code)
}

// DecodingError indicates a response body could not be parsed.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding error: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// RenewalError indicates the backend rejected a refresh token. It is treated
// as an auth error by the session state machine.
type RenewalError struct {
	Err error
}

func (e *RenewalError) Error() string {
	return fmt.Sprintf("token renewal rejected: %v", e.Err)
}

func (e *RenewalError) Unwrap() error { return e.Err }

// IsAuthError reports whether err means the current credential is no longer
// accepted by the backend. RenewalError counts: a rejected refresh token
// leaves no renewal path either.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoRefreshPath) {
		return true
	}
	var renewErr *RenewalError
	return errors.As(err, &renewErr)
}

// IsTransient reports whether err is a network or server-side failure that
// may succeed on a later attempt. Transient failures must never downgrade a
// signed-in user.
func IsTransient(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Code >= 500
	}
	return false
}

// Classify converts err into a human-readable message plus a retryability
// flag for error surfaces outside this core.
func Classify(err error) (msg string, retryable bool) {
	switch {
	case err == nil:
		return "", false
	case IsTransient(err):
		return "The chart service is temporarily unreachable. Please try again.", true
	case IsAuthError(err):
		return "Your session has expired. Please sign in again.", false
	default:
		var decErr *DecodingError
		if errors.As(err, &decErr) {
			return "The chart service returned an unexpected response.", true
		}
		return err.Error(), false
	}
}
