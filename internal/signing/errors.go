package signing

import (
	"errors"
	"fmt"
)

// Error represents a structured error from the signing package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeNoActiveSession indicates an operation on a session that was closed or never started
	ErrCodeNoActiveSession ErrorCode = "no_active_session"

	// ErrCodeInvalidState indicates an operation that is not allowed in the current session state
	// (e.g. FinalizeSignature before PrepareSignature)
	ErrCodeInvalidState ErrorCode = "invalid_state"

	// ErrCodeValidation indicates invalid input (unknown data file, bad signature value encoding, duplicate names...)
	ErrCodeValidation ErrorCode = "validation"

	// ErrCodeInternal indicates a local failure (filesystem, session store)
	ErrCodeInternal ErrorCode = "internal"
)

// ErrSessionNotFound is returned by Store implementations when no session has the requested ID
var ErrSessionNotFound = errors.New("signing session not found")

// SigningError represents a structured error from the signing workflow.
type SigningError struct {
	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *SigningError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *SigningError) Code() ErrorCode { return e.code }
func (e *SigningError) Unwrap() error   { return e.wrapped }

// NewNoActiveSessionError creates an error for an operation on a closed or unknown session.
func NewNoActiveSessionError(msg string) error {
	return &SigningError{code: ErrCodeNoActiveSession, message: msg}
}

// NewInvalidStateError creates an error for an operation that the session state does not allow.
func NewInvalidStateError(operation string, state State) error {
	return &SigningError{
		code:    ErrCodeInvalidState,
		message: fmt.Sprintf("%s is not allowed in state %s", operation, state),
	}
}

// NewValidationError creates an error for invalid input.
func NewValidationError(msg string) error {
	return &SigningError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
func WrapValidationError(err error, msg string) error {
	return &SigningError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &SigningError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &SigningError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// IsNoActiveSession reports whether err is (or wraps) a no_active_session error
func IsNoActiveSession(err error) bool {
	var signingErr *SigningError
	return errors.As(err, &signingErr) && signingErr.code == ErrCodeNoActiveSession
}
