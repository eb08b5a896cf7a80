// Package errors provides custom error types for the eosync system.
// These errors enable programmatic error checking and keep the
// validation / transient / consistency taxonomy explicit throughout
// the reconciliation core.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's chain matches target.
// It's an alias for the standard library errors.Is for convenience.
var Is = errors.Is

// As finds the first error in err's chain that matches target.
// It's an alias for the standard library errors.As for convenience.
var As = errors.As

// Common sentinel errors for the eosync system
var (
	// ErrNotFound indicates that a requested entity or record was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy indicates that a single-flight operation is already in progress
	ErrBusy = errors.New("operation already in progress")

	// ErrMissingContext indicates a conflict input without a value context
	ErrMissingContext = errors.New("value context required")

	// ErrDirtyEntity indicates an entity with unreconciled local edits
	ErrDirtyEntity = errors.New("entity has unsaved changes")

	// ErrFutureTimestamp indicates a rewind target past the reconciliation clock
	ErrFutureTimestamp = errors.New("cannot rewind to future state")

	// ErrNoSnapshot indicates no activity exists at or before the requested time
	ErrNoSnapshot = errors.New("no snapshot at or before timestamp")

	// ErrRateLimited indicates that the remote store rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates that a collaborator is temporarily unreachable
	ErrUnavailable = errors.New("temporarily unavailable")

	// ErrUnauthorized indicates bad or missing remote credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrClosed indicates use of a component after Close
	ErrClosed = errors.New("closed")
)

// ValidationError represents a validation failure. Validation errors are
// always the caller's responsibility to fix and are never retried.
type ValidationError struct {
	Field   string
	Value   any
	Message string
	Err     error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Unwrap returns the underlying sentinel, if any
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// WrapValidationError creates a ValidationError carrying a sentinel so
// callers can match it with errors.Is
func WrapValidationError(field string, value any, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message, Err: err}
}

// RemoteError represents an error from the remote tabular store.
// The status code decides whether the error reads as transient
// (retry next pass) or permanent (abort and reconfigure).
type RemoteError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote store error (status %d) at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("remote store error at %s: %s", e.Endpoint, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *RemoteError) Is(target error) bool {
	switch {
	case e.StatusCode == 429:
		return target == ErrRateLimited
	case e.StatusCode == 401 || e.StatusCode == 403:
		return target == ErrUnauthorized
	case e.StatusCode >= 500:
		return target == ErrUnavailable
	}
	return false
}

// NewRemoteError creates a new RemoteError
func NewRemoteError(endpoint string, statusCode int, message string) *RemoteError {
	return &RemoteError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    message,
	}
}

// SyncError represents a failed reconciliation pass. Phase names which
// step of the pass failed and Entities lists what was in flight, so a
// caller can retry safely.
type SyncError struct {
	Phase    string
	Entities []string
	Err      error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if len(e.Entities) > 0 {
		return fmt.Sprintf("sync failed during %s (entities: %v): %v", e.Phase, e.Entities, e.Err)
	}
	return fmt.Sprintf("sync failed during %s: %v", e.Phase, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError creates a new SyncError
func NewSyncError(phase string, entities []string, err error) *SyncError {
	return &SyncError{Phase: phase, Entities: entities, Err: err}
}

// RewindError represents a failed rewind operation.
type RewindError struct {
	EntityID string
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *RewindError) Error() string {
	return fmt.Sprintf("rewind of %s failed: %s", e.EntityID, e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *RewindError) Unwrap() error {
	return e.Err
}

// NewRewindError creates a new RewindError
func NewRewindError(entityID, reason string, err error) *RewindError {
	return &RewindError{EntityID: entityID, Reason: reason, Err: err}
}

// IOError represents an error during activity log I/O.
type IOError struct {
	Operation string // "append", "query", "snapshot", "open", "close"
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("IO error during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsBusy checks if an error is a single-flight rejection
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTransient reports whether an error is worth retrying on the next
// scheduled attempt rather than aborting outright.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// IsUnauthorized checks if an error indicates bad credentials
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
