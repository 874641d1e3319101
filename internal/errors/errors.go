// Package errors provides a lightweight structured error type (PipelineError)
// for category-based classification in the publish pipeline, CLI and daemon.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a pipeline error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// Stage-scoped pipeline errors
	CategoryGit       ErrorCategory = "git"
	CategoryPreflight ErrorCategory = "preflight"
	CategoryRender    ErrorCategory = "render"
	CategoryStamp     ErrorCategory = "stamp"
	CategoryVerify    ErrorCategory = "verify"
	CategoryPublish   ErrorCategory = "publish"

	// Runtime and infrastructure errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryDaemon     ErrorCategory = "daemon"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// PipelineError is a structured error with category, severity, and context
type PipelineError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PipelineError
type ContextFields map[string]any

// Build returns the error itself; kept so constructor chains read fluently.
func (e *PipelineError) Build() *PipelineError {
	return e
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the error severity.
func (e *PipelineError) WithSeverity(s ErrorSeverity) *PipelineError {
	e.Severity = s
	return e
}

// New creates a new PipelineError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PipelineError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapError wraps an existing error at SeverityError
func WrapError(err error, category ErrorCategory, message string) *PipelineError {
	return Wrap(err, category, SeverityError, message)
}

// IsCategory checks if an error belongs to a specific category, unwrapping
// as needed.
func IsCategory(err error, category ErrorCategory) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Category == category
	}
	return false
}

// GetCategory extracts the category from an error chain, or returns
// CategoryInternal when no PipelineError is present.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error (400 Bad Request)
func ValidationError(message string) *PipelineError {
	return New(CategoryValidation, SeverityWarning, message)
}

// DaemonError creates a new daemon error (service unavailable)
func DaemonError(message string) *PipelineError {
	return New(CategoryDaemon, SeverityError, message)
}
