package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a namespaced error code for Crucible framework errors.
type ErrorCode string

// Storage error codes.
const (
	DB_OPEN_FAILED    ErrorCode = "DB_OPEN_FAILED"
	DB_QUERY_FAILED   ErrorCode = "DB_QUERY_FAILED"
	DB_WRITE_FAILED   ErrorCode = "DB_WRITE_FAILED"
	ARTIFACT_IO_ERROR ErrorCode = "ARTIFACT_IO_ERROR"
)

// Connector error codes.
const (
	CONNECTOR_TRANSIENT ErrorCode = "CONNECTOR_TRANSIENT"
	CONNECTOR_TERMINAL  ErrorCode = "CONNECTOR_TERMINAL"
	CONNECTOR_TIMEOUT   ErrorCode = "CONNECTOR_TIMEOUT"
)

// Run lifecycle error codes.
const (
	PIPELINE_FATAL ErrorCode = "PIPELINE_FATAL"
	RUN_CANCELLED  ErrorCode = "RUN_CANCELLED"
)

// Plugin error codes.
const (
	PLUGIN_NOT_FOUND    ErrorCode = "PLUGIN_NOT_FOUND"
	PLUGIN_LOAD_FAILED  ErrorCode = "PLUGIN_LOAD_FAILED"
	MANIFEST_PARSE_FAIL ErrorCode = "MANIFEST_PARSE_FAIL"
)

// CrucibleError is the structured error carried across subsystem
// boundaries. Retryable marks errors the connector retry policy may
// consume; everything else escalates to the runner.
type CrucibleError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
// Format: "[CODE] message" or "[CODE] message: cause" when a cause exists.
func (e *CrucibleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *CrucibleError) Unwrap() error {
	return e.Cause
}

// NewError creates a non-retryable CrucibleError.
func NewError(code ErrorCode, message string) *CrucibleError {
	return &CrucibleError{Code: code, Message: message}
}

// WrapError creates a CrucibleError wrapping a cause.
func WrapError(code ErrorCode, message string, cause error) *CrucibleError {
	return &CrucibleError{Code: code, Message: message, Cause: cause}
}

// NewRetryableError creates a retryable CrucibleError.
func NewRetryableError(code ErrorCode, message string, cause error) *CrucibleError {
	return &CrucibleError{Code: code, Message: message, Retryable: true, Cause: cause}
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// CrucibleError.
func IsRetryable(err error) bool {
	var ce *CrucibleError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code ErrorCode) bool {
	var ce *CrucibleError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// ValidationError indicates malformed public input. It is raised
// synchronously and never reaches a persisted artifact.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError indicates a resource id with no backing artifact or row.
type NotFoundError struct {
	Kind string
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
