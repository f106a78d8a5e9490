package container

import "fmt"

// Error represents a structured error from the container package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeUnknownFormat indicates a filename or format name that is neither BDOC nor DDOC.
	ErrCodeUnknownFormat ErrorCode = "unknown_format"

	// ErrCodeMalformed indicates container bytes that cannot be parsed or violate the container invariants.
	ErrCodeMalformed ErrorCode = "malformed"

	// ErrCodeMissingDataFile indicates that a hashcode container cannot be restored because
	// the body of a data file was not supplied.
	ErrCodeMissingDataFile ErrorCode = "missing_data_file"

	// ErrCodeDigestMismatch indicates that a supplied data file body does not match the digest in the container.
	ErrCodeDigestMismatch ErrorCode = "digest_mismatch"

	// ErrCodeInternal indicates unexpected failures (e.g. writing the zip archive).
	ErrCodeInternal ErrorCode = "internal"
)

// ContainerError represents a structured error from the container package.
type ContainerError struct {
	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *ContainerError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ContainerError) Code() ErrorCode { return e.code }
func (e *ContainerError) Unwrap() error   { return e.wrapped }

// NewFormatError creates an error for an unrecognised container format.
func NewFormatError(msg string) error {
	return &ContainerError{code: ErrCodeUnknownFormat, message: msg}
}

// NewMalformedError creates an error for container content that cannot be used.
func NewMalformedError(msg string) error {
	return &ContainerError{code: ErrCodeMalformed, message: msg}
}

// WrapMalformedError wraps a parse error as a malformed container error.
func WrapMalformedError(err error, msg string) error {
	return &ContainerError{code: ErrCodeMalformed, message: msg, wrapped: err}
}

// NewMissingDataFileError creates an error for a data file body that was not supplied.
func NewMissingDataFileError(name string) error {
	return &ContainerError{code: ErrCodeMissingDataFile, message: fmt.Sprintf("data file %q was not supplied", name)}
}

// NewDigestMismatchError creates an error for a data file body that does not match its hashcode entry.
func NewDigestMismatchError(msg string) error {
	return &ContainerError{code: ErrCodeDigestMismatch, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &ContainerError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &ContainerError{code: ErrCodeInternal, message: msg, wrapped: err}
}
