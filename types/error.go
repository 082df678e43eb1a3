package types

import "fmt"

// ErrorCode represents a unified error code across the library.
type ErrorCode string

// Routing error codes
const (
	ErrAgentNotFound   ErrorCode = "AGENT_NOT_FOUND"
	ErrNoAgentsFound   ErrorCode = "NO_AGENTS_FOUND"
	ErrDeliveryFailed  ErrorCode = "DELIVERY_FAILED"
	ErrRouterClosed    ErrorCode = "ROUTER_CLOSED"
	ErrMessageExpired  ErrorCode = "MESSAGE_EXPIRED"
	ErrInvalidMessage  ErrorCode = "INVALID_MESSAGE"
	ErrTimeout         ErrorCode = "TIMEOUT"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Workflow error codes
const (
	ErrWorkflowNotFound  ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrWorkflowDisabled  ErrorCode = "WORKFLOW_DISABLED"
	ErrInvalidDefinition ErrorCode = "INVALID_DEFINITION"
	ErrStepFailed        ErrorCode = "STEP_FAILED"
	ErrValidationFailed  ErrorCode = "VALIDATION_FAILED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithComponent tags the error with the originating component.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
