package domain

import (
	"errors"
	"fmt"
)

// Error classes surfaced by the conversion pipelines. Callers wrap them with the
// underlying cause so errors.Is works on both the class and the cause.
var (
	ErrValidation         = errors.New("invalid request")
	ErrBusy               = errors.New("render capacity exhausted")
	ErrEngineLaunch       = errors.New("rendering engine failed to launch")
	ErrEngineLost         = errors.New("rendering session interrupted")
	ErrContentLoadTimeout = errors.New("content load timed out")
	ErrRender             = errors.New("PDF rendering failed")
	ErrTooLarge           = errors.New("artifact exceeds allowed size")
	ErrSourceFetch        = errors.New("source fetch failed")
	ErrExtraction         = errors.New("document extraction failed")
	ErrNotFound           = errors.New("artifact not found")
	ErrPersist            = errors.New("artifact persistence failed")
	ErrNotReady           = errors.New("service not ready")
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// Invalid builds a validation error with a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Wrap attaches cause to the error class kind.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
