package api

// error_response.go implements the JSON error response of the signing API.
// It maps the errors of the lower level packages to an HTTP status and an API error code.

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/dds"
	"github.com/eid-tools/dds-hashcode/internal/logger"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

const internalErrorMessage = "An internal error occurred"

// ErrorResponse is the body of every error response
type ErrorResponse struct {

	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	// The HTTP status code returned
	StatusCode int `json:"statusCode"`

	// A standard short description corresponding to the HTTP status code
	StatusCodeText string `json:"statusCodeText"`

	// A long description corresponding to the HTTP status code with additional information
	StatusCodeMessage string `json:"statusCodeMessage,omitempty"`

	// The request ID, use it to find the request in the server logs
	ProviderCorrelationReference string `json:"providerCorrelationReference,omitempty"`

	// The DateTime corresponding to the error occurring
	ErrorDateTime string `json:"errorDateTime"`

	// An array of errors providing more detail about the root cause
	Errors []DetailedError `json:"errors"`
}

// DetailedError represents a detailed error in the error response
type DetailedError struct {
	// 7000-7999 for technical errors, 8000-8999 for functional errors
	ErrorCode        ErrorCode `json:"errorCode"`
	Property         string    `json:"property,omitempty"`
	Value            string    `json:"value,omitempty"`
	JSONPath         string    `json:"jsonPath,omitempty"`
	ErrorCodeText    string    `json:"errorCodeText"`
	ErrorCodeMessage string    `json:"errorCodeMessage"`
}

// MapErrorToResponse maps api, signing, container, dds, crypto or generic errors to an error response.
//
// Internal errors are reported with a generic message, the full error is logged server-side by RespondWithErrorResponse.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errorResponseFromAPI(apiErr, r, requestID)
	}

	var signingErr *signing.SigningError
	if errors.As(err, &signingErr) {
		return errorResponseFromSigning(signingErr, r, requestID)
	}

	// dds before crypto and container: a DigiDocService failure is the most specific cause
	var ddsErr *dds.DDSError
	if errors.As(err, &ddsErr) {
		return errorResponseFromDDS(ddsErr, r, requestID)
	}

	var containerErr *container.ContainerError
	if errors.As(err, &containerErr) {
		return errorResponseFromContainer(containerErr, r, requestID)
	}

	var cryptoErr *crypto.CryptoError
	if errors.As(err, &cryptoErr) {
		return errorResponseFromCrypto(cryptoErr, r, requestID)
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return newErrorResponse(r, requestID, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request too large",
			fmt.Sprintf("request body exceeds the maximum allowed size (%d bytes)", maxBytesErr.Limit))
	}

	// fallback - not expected: return an internal error response and log the unmapped error
	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Error("BUG: Unmapped error type in MapErrorToResponse",
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", internalErrorMessage)
}

func errorResponseFromAPI(err *APIError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	var errorCodeText string
	message := err.Error()

	switch err.Code() {
	case ErrCodeMalformedRequest:
		statusCode = http.StatusBadRequest
		errorCodeText = "Malformed request"
	case ErrCodeInvalidRequest:
		statusCode = http.StatusBadRequest
		errorCodeText = "Invalid request"
	case ErrCodeNotFound:
		statusCode = http.StatusNotFound
		errorCodeText = "Not found"
	case ErrCodeRateLimitExceeded:
		statusCode = http.StatusTooManyRequests
		errorCodeText = "Rate limit exceeded"
	case ErrCodeRequestTooLarge:
		statusCode = http.StatusRequestEntityTooLarge
		errorCodeText = "Request too large"
	default:
		statusCode = http.StatusInternalServerError
		errorCodeText = "Internal Error"
		message = internalErrorMessage
	}

	return newErrorResponse(r, requestID, statusCode, err.Code(), errorCodeText, message)
}

// errorResponseFromSigning maps workflow errors. Session state errors are functional errors.
func errorResponseFromSigning(err *signing.SigningError, r *http.Request, requestID string) *ErrorResponse {
	switch err.Code() {
	case signing.ErrCodeNoActiveSession:
		return newErrorResponse(r, requestID, http.StatusNotFound, ErrCodeNoActiveSession, "No active session", err.Error())
	case signing.ErrCodeInvalidState:
		return newErrorResponse(r, requestID, http.StatusConflict, ErrCodeInvalidState, "Invalid session state", err.Error())
	case signing.ErrCodeValidation:
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request", err.Error())
	default:
		return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", internalErrorMessage)
	}
}

// errorResponseFromDDS maps DigiDocService failures. Unreachable or unreadable responses are reported as
// a bad gateway, rejected operations as unprocessable.
func errorResponseFromDDS(err *dds.DDSError, r *http.Request, requestID string) *ErrorResponse {
	switch err.Code() {
	case dds.ErrCodeService:
		if err.Status() == dds.FaultBadSignature {
			return newErrorResponse(r, requestID, http.StatusUnprocessableEntity, ErrCodeBadSignature, "Bad signature", err.Error())
		}
		return newErrorResponse(r, requestID, http.StatusUnprocessableEntity, ErrCodeSigningServiceRejected, "Signing service rejected the request", err.Error())
	case dds.ErrCodeTransport, dds.ErrCodeProtocol:
		return newErrorResponse(r, requestID, http.StatusBadGateway, ErrCodeSigningServiceUnavailable, "Signing service unavailable", err.Error())
	case dds.ErrCodeInvalidRequest:
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request", err.Error())
	default:
		return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", internalErrorMessage)
	}
}

func errorResponseFromContainer(err *container.ContainerError, r *http.Request, requestID string) *ErrorResponse {
	switch err.Code() {
	case container.ErrCodeUnknownFormat:
		return newErrorResponse(r, requestID, http.StatusUnsupportedMediaType, ErrCodeUnsupportedContainer, "Unsupported container", err.Error())
	case container.ErrCodeMalformed:
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeMalformedContainer, "Malformed container", err.Error())
	case container.ErrCodeDigestMismatch:
		return newErrorResponse(r, requestID, http.StatusUnprocessableEntity, ErrCodeBadDigest, "Bad digest", err.Error())
	case container.ErrCodeMissingDataFile:
		return newErrorResponse(r, requestID, http.StatusUnprocessableEntity, ErrCodeMissingDataFile, "Missing data file", err.Error())
	default:
		return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", internalErrorMessage)
	}
}

func errorResponseFromCrypto(err *crypto.CryptoError, r *http.Request, requestID string) *ErrorResponse {
	switch err.Code() {
	case crypto.ErrCodeCertificate:
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeBadCertificate, "Bad certificate", err.Error())
	case crypto.ErrCodeValidation:
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request", err.Error())
	case crypto.ErrCodeKeyManagement, crypto.ErrCodeSigning:
		return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeKeyError, "Signing token error", internalErrorMessage)
	default:
		return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", internalErrorMessage)
	}
}

func newErrorResponse(r *http.Request, requestID string, statusCode int, code ErrorCode, errorCodeText, message string) *ErrorResponse {
	return &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   statusCode,
		StatusCodeText:               http.StatusText(statusCode),
		StatusCodeMessage:            errorCodeText,
		ProviderCorrelationReference: requestID,
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
		Errors: []DetailedError{
			{
				ErrorCode:        code,
				ErrorCodeText:    errorCodeText,
				ErrorCodeMessage: message,
			},
		},
	}
}
