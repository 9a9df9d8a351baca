package domain

import (
	"errors"
	"fmt"
)

// ErrIndexUnavailable is returned when retrieval is requested without a loaded index
var ErrIndexUnavailable = errors.New("document index unavailable")

// AuthError reports a failure to sign the service-account assertion or to obtain an IAM token
type AuthError struct {
	Body string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("auth error: %v: %s", e.Err, e.Body)
	}
	return fmt.Sprintf("auth error: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CompletionError reports a failed completion request or a malformed completion response
type CompletionError struct {
	StatusCode int
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion error: %v", e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ValidationError reports that the safety check itself could not be completed.
// A blocked question is not an error.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RetrievalError reports an unavailable index or a failed embedding call
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval error: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
