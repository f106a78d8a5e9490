package dds

import (
	"errors"
	"fmt"
)

// Error represents a structured error from the dds package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeTransport indicates the request did not reach DigiDocService or no SOAP response came back
	// (network failure, timeout, unexpected HTTP status).
	ErrCodeTransport ErrorCode = "transport"

	// ErrCodeService indicates DigiDocService rejected the operation: a SOAP fault or a Status other than "OK".
	ErrCodeService ErrorCode = "service"

	// ErrCodeProtocol indicates a response that could not be decoded.
	ErrCodeProtocol ErrorCode = "protocol"

	// ErrCodeInvalidRequest indicates a request that was not sent because it is incomplete.
	ErrCodeInvalidRequest ErrorCode = "invalid_request"
)

// DigiDocService fault strings (Status of a service error)
const (
	FaultGeneral        = "100"
	FaultBadParameters  = "101"
	FaultSessionUnknown = "103"
	FaultBadSignature   = "305"
)

// DDSError represents a structured error from a DigiDocService call.
type DDSError struct {
	// code is the error code
	code ErrorCode

	// operation is the SOAP operation that failed (e.g. "PrepareSignature")
	operation string

	// status is the service status or SOAP fault string (service errors only)
	status string

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *DDSError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.operation, e.message)
	if e.status != "" {
		msg = fmt.Sprintf("%s: %s (status %s)", e.operation, e.message, e.status)
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", msg, e.wrapped)
	}
	return msg
}

func (e *DDSError) Code() ErrorCode   { return e.code }
func (e *DDSError) Unwrap() error     { return e.wrapped }
func (e *DDSError) Operation() string { return e.operation }

// Status returns the status reported by DigiDocService (empty for non-service errors)
func (e *DDSError) Status() string { return e.status }

// NewTransportError wraps a network or HTTP failure of operation.
func NewTransportError(operation string, err error) error {
	return &DDSError{code: ErrCodeTransport, operation: operation, message: "DigiDocService request failed", wrapped: err}
}

// NewServiceError creates an error for a SOAP fault or a non-OK status. The message is passed through from the service.
func NewServiceError(operation, status, msg string) error {
	if msg == "" {
		msg = "DigiDocService returned an error"
	}
	return &DDSError{code: ErrCodeService, operation: operation, status: status, message: msg}
}

// NewProtocolError wraps a failure to decode the response of operation.
func NewProtocolError(operation string, err error) error {
	return &DDSError{code: ErrCodeProtocol, operation: operation, message: "invalid DigiDocService response", wrapped: err}
}

// NewInvalidRequestError creates an error for a request that fails validation before it is sent.
func NewInvalidRequestError(operation, msg string) error {
	return &DDSError{code: ErrCodeInvalidRequest, operation: operation, message: msg}
}

// IsTransportError reports whether err is (or wraps) a transport error
func IsTransportError(err error) bool {
	return hasCode(err, ErrCodeTransport)
}

// IsServiceError reports whether err is (or wraps) a service error
func IsServiceError(err error) bool {
	return hasCode(err, ErrCodeService)
}

func hasCode(err error, code ErrorCode) bool {
	var ddsErr *DDSError
	return errors.As(err, &ddsErr) && ddsErr.code == code
}
