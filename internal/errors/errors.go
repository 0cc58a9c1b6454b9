// Package errors provides a lightweight structured error type (PakctlError)
// for category-based classification in transport adapters and the CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a pakctl error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External system integration errors
	CategoryDaemon ErrorCategory = "daemon"
	CategoryStream ErrorCategory = "stream"

	// Runtime and infrastructure errors
	CategoryStorage  ErrorCategory = "storage"
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// ContextFields carries structured context for PakctlError
type ContextFields map[string]any

// PakctlError is a structured error with category, severity, and context
type PakctlError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// Error implements the error interface
func (e *PakctlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PakctlError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PakctlError) WithContext(key string, value any) *PakctlError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new PakctlError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PakctlError {
	return &PakctlError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new PakctlError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PakctlError {
	return &PakctlError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if pe, ok := err.(*PakctlError); ok {
		return pe.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a PakctlError
func GetCategory(err error) ErrorCategory {
	if pe, ok := err.(*PakctlError); ok {
		return pe.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error
func ValidationError(message string) *PakctlError {
	return &PakctlError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}
