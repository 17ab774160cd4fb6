package models

import (
	"errors"
	"fmt"
	"time"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
)

// PipelineError is the structured error used across all services. Errors are
// values, not control flow: stage failures are folded into degraded answers
// by the orchestrator, never re-panicked.
type PipelineError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Retryable bool                   `json:"retryable"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithCause(cause error) *PipelineError {
	copied := *e
	copied.Cause = cause
	return &copied
}

func (e *PipelineError) WithMetadata(key string, value interface{}) *PipelineError {
	copied := *e
	copied.Metadata = make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		copied.Metadata[k] = v
	}
	copied.Metadata[key] = value
	return &copied
}

func newError(errType ErrorType, code, message string, retryable bool) *PipelineError {
	return &PipelineError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now(),
	}
}

func NewValidationError(code, message string) *PipelineError {
	return newError(ErrorTypeValidation, code, message, false)
}

func NewExternalError(code, message string) *PipelineError {
	return newError(ErrorTypeExternal, code, message, true)
}

func NewInternalError(code, message string) *PipelineError {
	return newError(ErrorTypeInternal, code, message, false)
}

func NewTimeoutError(code, message string) *PipelineError {
	return newError(ErrorTypeTimeout, code, message, true)
}

func WrapExternalError(service string, err error) *PipelineError {
	return NewExternalError(service+"_FAILED", fmt.Sprintf("%s call failed", service)).WithCause(err)
}

var ErrEndpointNotFound = NewValidationError("ENDPOINT_NOT_FOUND", "Knowledge source endpoint not registered")

func IsValidationError(err error) bool {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Type == ErrorTypeValidation
	}
	return false
}

func IsTimeoutError(err error) bool {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Type == ErrorTypeTimeout
	}
	return false
}

func IsEndpointNotFound(err error) bool {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Code == ErrEndpointNotFound.Code
	}
	return false
}

// ErrorKind names an error's category for execution summaries.
func ErrorKind(err error) string {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		switch pipelineErr.Type {
		case ErrorTypeValidation:
			return "ValidationError"
		case ErrorTypeTimeout:
			return "TimeoutError"
		case ErrorTypeExternal:
			return "ExternalError"
		case ErrorTypeInternal:
			return "InternalError"
		}
	}
	return "StageError"
}
