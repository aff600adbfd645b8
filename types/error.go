package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Workflow error codes
const (
	ErrTemplateNotFound       ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrDuplicateTemplate      ErrorCode = "DUPLICATE_TEMPLATE"
	ErrDuplicateStepName      ErrorCode = "DUPLICATE_STEP_NAME"
	ErrInvalidTemplate        ErrorCode = "INVALID_TEMPLATE"
	ErrUnresolvedVariable     ErrorCode = "UNRESOLVED_VARIABLE"
	ErrCircularDependency     ErrorCode = "CIRCULAR_OR_UNSATISFIED_DEPENDENCY"
	ErrStepExecutionFailed    ErrorCode = "STEP_EXECUTION_FAILED"
	ErrUnknownStepKind        ErrorCode = "UNKNOWN_STEP_KIND"
	ErrInstanceNotFound       ErrorCode = "INSTANCE_NOT_FOUND"
	ErrInvalidState           ErrorCode = "INVALID_STATE"
	ErrNotificationRejected   ErrorCode = "NOTIFICATION_REJECTED"
	ErrInvalidStepConfig      ErrorCode = "INVALID_STEP_CONFIG"
	ErrUnknownTransform       ErrorCode = "UNKNOWN_TRANSFORM"
	ErrNotificationSinkAbsent ErrorCode = "NOTIFICATION_SINK_NOT_FOUND"
)

// LLM error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrNoProviderAvailable ErrorCode = "NO_PROVIDER_AVAILABLE"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Step       string    `json:"step,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("step %q: %s", e.Step, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithStep sets the failing step name.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// NewStepError wraps a step failure with the name of the step that produced it.
func NewStepError(step string, cause error) *Error {
	return &Error{
		Code:    ErrStepExecutionFailed,
		Message: "step execution failed",
		Step:    step,
		Cause:   cause,
	}
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
