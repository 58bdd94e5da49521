package service

import (
	"errors"
	"time"
)

// ErrorKind classifies auth failures for the HTTP boundary. Store and
// infrastructure failures are not kinds; they propagate as plain wrapped
// errors and surface as a generic failure.
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindRateLimited          ErrorKind = "rate_limited"
	KindInvalidOrExpiredCode ErrorKind = "invalid_or_expired_code"
	KindTooManyAttempts      ErrorKind = "too_many_attempts"
	KindDeliveryFailed       ErrorKind = "delivery_failed"
)

// AuthError is a terminal domain failure. RetryAfter is non-zero only for
// limit kinds, where the client is expected to render a countdown.
type AuthError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AsAuthError unwraps err into an *AuthError, or returns nil if the
// failure is not a domain one.
func AsAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return nil
}

func errInvalidInput(message string) error {
	return &AuthError{Kind: KindInvalidInput, Message: message}
}

func errRateLimited(retryAfter time.Duration) error {
	return &AuthError{
		Kind:       KindRateLimited,
		Message:    "too many code requests",
		RetryAfter: retryAfter,
	}
}

// errInvalidCode deliberately covers "no outstanding request", "expired",
// "already used" and "wrong code" so callers cannot probe which state an
// email is in.
func errInvalidCode() error {
	return &AuthError{Kind: KindInvalidOrExpiredCode, Message: "invalid or expired code"}
}

func errTooManyAttempts(retryAfter time.Duration) error {
	return &AuthError{
		Kind:       KindTooManyAttempts,
		Message:    "verification attempts exceeded, request a new code",
		RetryAfter: retryAfter,
	}
}

func errDeliveryFailed(err error) error {
	return &AuthError{Kind: KindDeliveryFailed, Message: "failed to deliver code", Err: err}
}
