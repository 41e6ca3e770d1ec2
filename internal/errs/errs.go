// Package errs defines the error taxonomy shared by the streaming session,
// the REST client and the batch order manager.
//
// Every concrete error returned by this module wraps exactly one of the
// sentinels below, so callers can branch with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrAuth               = errors.New("auth error")
	ErrConnect            = errors.New("connect error")
	ErrValidation         = errors.New("validation error")
	ErrAPI                = errors.New("api error")
	ErrTimeout            = errors.New("timeout")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Auth returns an error wrapping ErrAuth and, if non-nil, cause.
func Auth(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrAuth, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrAuth, msg, cause)
}

// Connect returns an error wrapping ErrConnect and cause.
func Connect(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrConnect, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConnect, msg, cause)
}
