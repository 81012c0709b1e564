package types

import "fmt"

// ErrorCode represents a unified error code across the runtime.
type ErrorCode string

// Orchestrator error codes
const (
	ErrAgentNotFound        ErrorCode = "AGENT_NOT_FOUND"
	ErrTaskNotFound         ErrorCode = "TASK_NOT_FOUND"
	ErrTaskNotAssigned      ErrorCode = "TASK_NOT_ASSIGNED"
	ErrCoordinatorProtected ErrorCode = "COORDINATOR_PROTECTED"
	ErrInvalidTransition    ErrorCode = "INVALID_TRANSITION"
)

// Memory error codes
const (
	ErrEpisodeNotFound ErrorCode = "EPISODE_NOT_FOUND"
	ErrMemoryNotFound  ErrorCode = "MEMORY_NOT_FOUND"
)

// Persistence error codes
const (
	ErrPersistence  ErrorCode = "PERSISTENCE"
	ErrStoreClosed  ErrorCode = "STORE_CLOSED"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error represents a structured error with code, message, and cause.
// Public orchestrator and memory operations absorb these and expose
// sentinel return values; Error is used at internal boundaries such as
// persistence I/O.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
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

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
