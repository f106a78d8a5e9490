package api

// errors.go defines the error codes returned by the signing API

import "fmt"

// APIError represents a structured error raised by the HTTP layer (request decoding, middleware).
type APIError struct {
	// code is the API error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *APIError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *APIError) Code() ErrorCode { return e.code }
func (e *APIError) Unwrap() error   { return e.wrapped }

// ErrorCode is used in error responses.
//
// The codes follow two ranges:
//
//   - 7000-7999 for technical errors - the request cannot be processed because of the supplied data or a technical issue.
//   - 8000-8999 for functional errors - the request is valid but the signing workflow does not allow it.
type ErrorCode int

const (

	// ErrCodeBadSignature is used when DigiDocService rejects a signature value
	ErrCodeBadSignature ErrorCode = 7001

	// ErrCodeBadCertificate is used when the signer certificate cannot be parsed or is not usable for signing
	ErrCodeBadCertificate ErrorCode = 7002

	// ErrCodeBadDigest is used when a data file body does not match the digest recorded in the container
	ErrCodeBadDigest ErrorCode = 7003

	// ErrCodeInvalidRequest is used when a request field is missing or invalid
	ErrCodeInvalidRequest ErrorCode = 7004

	// ErrCodeInternalError is used when an internal server error occurs
	ErrCodeInternalError ErrorCode = 7005

	// ErrCodeMalformedRequest is used when the JSON or multipart body cannot be parsed
	ErrCodeMalformedRequest ErrorCode = 7006

	// ErrCodeKeyError is used when the local signing token fails
	ErrCodeKeyError ErrorCode = 7007

	// ErrCodeSigningServiceUnavailable is used when DigiDocService cannot be reached or its response cannot be read
	ErrCodeSigningServiceUnavailable ErrorCode = 7008

	// ErrCodeRateLimitExceeded is used when the rate limit is exceeded
	// - this is only used in the middleware
	ErrCodeRateLimitExceeded ErrorCode = 7009

	// ErrCodeRequestTooLarge is used when the request body is too large
	ErrCodeRequestTooLarge ErrorCode = 7010

	// ErrCodeUnsupportedContainer is used for files that are neither BDOC nor DDOC
	ErrCodeUnsupportedContainer ErrorCode = 7011

	// ErrCodeMalformedContainer is used when an uploaded container cannot be parsed
	ErrCodeMalformedContainer ErrorCode = 7012

	// ErrCodeNoActiveSession is used when the signing session does not exist or was closed
	ErrCodeNoActiveSession ErrorCode = 8001

	// ErrCodeInvalidState is used when the operation is not allowed in the current session state
	ErrCodeInvalidState ErrorCode = 8002

	// ErrCodeSigningServiceRejected is used when DigiDocService refuses an operation
	ErrCodeSigningServiceRejected ErrorCode = 8003

	// ErrCodeMissingDataFile is used when a container cannot be restored because a data file body is missing
	ErrCodeMissingDataFile ErrorCode = 8004

	// ErrCodeNotFound is used for resources other than sessions (e.g. the JWK set when no signing token is configured)
	ErrCodeNotFound ErrorCode = 8005
)

// NewMalformedRequestError creates an error for request bodies that cannot be parsed.
func NewMalformedRequestError(msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg}
}

// WrapMalformedRequestError wraps an existing error as a malformed request error.
func WrapMalformedRequestError(err error, msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg, wrapped: err}
}

// NewInvalidRequestError creates an error for missing or invalid request fields.
func NewInvalidRequestError(msg string) error {
	return &APIError{code: ErrCodeInvalidRequest, message: msg}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(msg string) error {
	return &APIError{code: ErrCodeNotFound, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg, wrapped: err}
}

// NewRateLimitError creates a rate limit exceeded error.
//
// The returned error will have code ErrCodeRateLimitExceeded.
func NewRateLimitError(msg string) error {
	return &APIError{code: ErrCodeRateLimitExceeded, message: msg}
}

// NewRequestTooLargeError creates a request too large error.
// Use this when the request body exceeds the maximum allowed size.
//
// The returned error will have code ErrCodeRequestTooLarge.
func NewRequestTooLargeError(msg string) error {
	return &APIError{code: ErrCodeRequestTooLarge, message: msg}
}
