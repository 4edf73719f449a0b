// Package errors provides centralized error definitions and error handling
// utilities for the quorum codebase. It defines the coordination error
// taxonomy, error constructors with context wrapping, and classification
// helpers.
//
// # Error Types
//
// Semantic errors represent the failure categories of the coordination core:
//   - NotFoundError: unknown task or session id; surfaced to the caller, never retried
//   - ValidationError: state violations (vote outside voting phase, wrong author,
//     missing rejection feedback); the caller must correct and retry
//   - TransientError: rate limits and 5xx-class failures from the generation
//     capability; retried with backoff up to a bounded attempt count
//   - TimeoutError: an operation exceeded its window; produces escalation, not a kill
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewNotFoundError("task", "task-123")
//	err := errors.NewValidationError("rejection requires feedback").WithField("feedback")
//	err := errors.NewTransientError("rate limited", cause).WithStatusCode(429)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTaskNotFound) { ... }
//
//	var nf *errors.NotFoundError
//	if errors.As(err, &nf) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Coordination sentinel errors
var (
	// ErrTaskNotFound indicates that a task context could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrSessionNotFound indicates that a consensus session could not be found.
	ErrSessionNotFound = New("consensus session not found")
	// ErrMessageNotFound indicates that a referenced message could not be found.
	ErrMessageNotFound = New("message not found")
	// ErrContextDrift indicates that a sender's context hash does not match the task.
	ErrContextDrift = New("context hash mismatch")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// classifier is implemented by all semantic error types.
type classifier interface {
	IsRetryable() bool
	IsUserFacing() bool
	Severity() Severity
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("task", "task-123")
//	fmt.Println(err) // "task 'task-123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	switch e.ResourceType {
	case "task":
		if target == ErrTaskNotFound {
			return true
		}
	case "session":
		if target == ErrSessionNotFound {
			return true
		}
	case "message":
		if target == ErrMessageNotFound {
			return true
		}
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or a state violation: an
// operation attempted outside the phase that permits it.
//
// Example:
//
//	err := errors.NewValidationError("rejection requires feedback").WithField("feedback")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error [%s]: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TransientError represents a transient infrastructure failure (rate limit,
// 5xx-class response from the generation capability). Transient errors are
// the only errors the worker-pool retry loop will retry.
type TransientError struct {
	baseError
	StatusCode int
}

// NewTransientError creates a new TransientError.
func NewTransientError(message string, cause error) *TransientError {
	return &TransientError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
	}
}

// WithStatusCode records the HTTP status that classified this error.
func (e *TransientError) WithStatusCode(code int) *TransientError {
	e.StatusCode = code
	return e
}

// Error returns the formatted error message.
func (e *TransientError) Error() string {
	prefix := "transient error"
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("transient error [status=%d]", e.StatusCode)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TransientError) Is(target error) bool {
	if _, ok := target.(*TransientError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that exceeded its window. Timeouts
// produce escalation events, never forced cancellation, so the retryable
// default is true.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("timeout error: %s (timeout: %s): %v", e.Operation, e.Duration, e.cause)
	}
	return fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the error is transient and the operation may
// succeed on retry. Unknown error types are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c classifier
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether the error message is safe to display to users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var c classifier
	if errors.As(err, &c) {
		return c.IsUserFacing()
	}
	return false
}

// IsNotFound reports whether the error is any not-found condition.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether the error is a validation / state violation.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// GetSeverity returns the severity of the error, defaulting to
// SeverityError for unclassified errors.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var c classifier
	if errors.As(err, &c) {
		return c.Severity()
	}
	return SeverityError
}
