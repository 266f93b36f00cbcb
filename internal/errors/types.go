// Package errors defines the structured error taxonomy used across livepad.
//
// Only pipeline-level failures are represented here. Errors raised by user
// script inside the isolated host never become Go errors; they travel through
// the diagnostics channel instead.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeHostUnavailable ErrorType = "host_unavailable"
	ErrorTypeAssembly        ErrorType = "assembly"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeIO              ErrorType = "io"
	ErrorTypeInternal        ErrorType = "internal"
)

// PreviewError is a structured error type with context.
type PreviewError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *PreviewError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PreviewError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *PreviewError) Is(target error) bool {
	var t *PreviewError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PreviewError) WithContext(key string, value interface{}) *PreviewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// Human returns the message without code or cause, suitable for a status banner.
func (e *PreviewError) Human() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// NewHostUnavailableError reports that the isolated surface cannot be written.
// The caller surfaces it with a retry affordance; there is no automatic retry.
func NewHostUnavailableError(code, message string) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeHostUnavailable,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewAssemblyError wraps an internal fault raised while building a document.
func NewAssemblyError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeAssembly,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsHostUnavailable checks if an error means the surface could not be reached.
func IsHostUnavailable(err error) bool {
	return hasType(err, ErrorTypeHostUnavailable)
}

// IsAssemblyError checks if an error came from document assembly.
func IsAssemblyError(err error) bool {
	return hasType(err, ErrorTypeAssembly)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

func hasType(err error, t ErrorType) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Type == t
	}

	return false
}

// Code returns the code of the first PreviewError in err's chain, or "".
func Code(err error) string {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Message extracts the human readable part of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Human()
	}
	return err.Error()
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a severity matching its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PreviewError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch pe.Type {
	case ErrorTypeHostUnavailable, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Recoverable error occurred",
			"type", pe.Type,
			"code", pe.Code)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", pe.Type,
			"code", pe.Code)
	}
}

// Common error codes.
const (
	ErrCodeHostNotMounted   = "ERR_HOST_NOT_MOUNTED"
	ErrCodeHostNoDocument   = "ERR_HOST_NO_DOCUMENT"
	ErrCodeAssemblyFailed   = "ERR_ASSEMBLY_FAILED"
	ErrCodeAssemblyPanic    = "ERR_ASSEMBLY_PANIC"
	ErrCodeUnknownAction    = "ERR_UNKNOWN_ACTION"
	ErrCodeUnknownFragment  = "ERR_UNKNOWN_FRAGMENT"
	ErrCodeUnknownTemplate  = "ERR_UNKNOWN_TEMPLATE"
	ErrCodeUnknownFormat    = "ERR_UNKNOWN_FORMAT"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeIOFailed         = "ERR_IO_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodePipelineClosed   = "ERR_PIPELINE_CLOSED"
)

// ErrHostNotMounted is returned by surfaces that have not been mounted or were disposed.
func ErrHostNotMounted() *PreviewError {
	return NewHostUnavailableError(ErrCodeHostNotMounted, "preview surface is not mounted")
}

// ErrUnknownAction creates an unknown command action error.
func ErrUnknownAction(action string) *PreviewError {
	return NewValidationError(ErrCodeUnknownAction, "unknown action: "+action)
}

// ErrUnknownFragment creates an unknown fragment name error.
func ErrUnknownFragment(name string) *PreviewError {
	return NewValidationError(ErrCodeUnknownFragment, "unknown fragment: "+name)
}
