package crypto

import "fmt"

// Error represents a structured error from the crypto package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	ErrCodeValidation    ErrorCode = "validation"
	ErrCodeCertificate   ErrorCode = "certificate"
	ErrCodeKeyManagement ErrorCode = "key_management"
	ErrCodeSigning       ErrorCode = "signing"
	ErrCodeInternal      ErrorCode = "internal"
)

// CryptoError represents a structured error from the crypto package
type CryptoError struct {

	// code is the cryptoerror code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *CryptoError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *CryptoError) Code() ErrorCode { return e.code }
func (e *CryptoError) Unwrap() error   { return e.wrapped }

// NewValidationError creates a validation error for invalid input.
// Use this for errors related to malformed digests, bad encoding,
// or unsupported digest algorithms.
//
// The returned error will have code ErrCodeValidation.
func NewValidationError(msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
//
// The returned error will have code ErrCodeValidation.
func WrapValidationError(err error, msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewCertificateError creates a certificate error.
// Use this for signer certificates that cannot be parsed or do not match the signing key.
//
// The returned error will have code ErrCodeCertificate.
func NewCertificateError(msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg}
}

// WrapCertificateError wraps an existing error as a certificate error.
//
// The returned error will have code ErrCodeCertificate.
func WrapCertificateError(err error, msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg, wrapped: err}
}

// NewKeyManagementError creates a key management error.
// Use this for errors related to loading the signing token (PKCS#12 keystore),
// wrong passwords or unsupported key types.
//
// The returned error will have code ErrCodeKeyManagement.
func NewKeyManagementError(msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg}
}

// WrapKeyManagementError wraps an existing error as a key management error.
//
// The returned error will have code ErrCodeKeyManagement.
func WrapKeyManagementError(err error, msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg, wrapped: err}
}

// NewSigningError creates an error for a failed signing operation on the local token.
//
// The returned error will have code ErrCodeSigning.
func NewSigningError(msg string) error {
	return &CryptoError{code: ErrCodeSigning, message: msg}
}

// WrapSigningError wraps an existing error as a signing error.
//
// The returned error will have code ErrCodeSigning.
func WrapSigningError(err error, msg string) error {
	return &CryptoError{code: ErrCodeSigning, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
//
// The returned error will have code ErrCodeInternal.
func NewInternalError(msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
//
// The returned error will have code ErrCodeInternal.
func WrapInternalError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg, wrapped: err}
}
