package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/dds"
	"github.com/eid-tools/dds-hashcode/internal/signing"
)

// sanity check that the error codes are in the correct range
func TestErrorCodes(t *testing.T) {
	technical := []ErrorCode{
		ErrCodeBadSignature, ErrCodeBadCertificate, ErrCodeBadDigest, ErrCodeInvalidRequest,
		ErrCodeInternalError, ErrCodeMalformedRequest, ErrCodeKeyError, ErrCodeSigningServiceUnavailable,
		ErrCodeRateLimitExceeded, ErrCodeRequestTooLarge, ErrCodeUnsupportedContainer, ErrCodeMalformedContainer,
	}
	functional := []ErrorCode{
		ErrCodeNoActiveSession, ErrCodeInvalidState, ErrCodeSigningServiceRejected, ErrCodeMissingDataFile, ErrCodeNotFound,
	}

	seen := map[ErrorCode]bool{}
	for _, code := range technical {
		if code < 7000 || code > 7999 {
			t.Errorf("technical error code %d out of range", code)
		}
		if seen[code] {
			t.Errorf("duplicate error code %d", code)
		}
		seen[code] = true
	}
	for _, code := range functional {
		if code < 8000 || code > 8999 {
			t.Errorf("functional error code %d out of range", code)
		}
		if seen[code] {
			t.Errorf("duplicate error code %d", code)
		}
		seen[code] = true
	}
}

func TestMapErrorToResponse(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantStatus      int
		wantCode        ErrorCode
		wantMessage     string
		messageRedacted bool
	}{
		{
			name:       "no active session",
			err:        signing.NewNoActiveSessionError("no active signing session"),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeNoActiveSession,
		},
		{
			name:        "invalid state",
			err:         signing.NewInvalidStateError("FinalizeSignature", signing.StateDataFilesRegistered),
			wantStatus:  http.StatusConflict,
			wantCode:    ErrCodeInvalidState,
			wantMessage: "FinalizeSignature is not allowed in state data_files_registered",
		},
		{
			name:       "workflow validation",
			err:        signing.NewValidationError("data file \"a.txt\" already exists in the container"),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidRequest,
		},
		{
			name:            "workflow internal error is redacted",
			err:             signing.WrapInternalError(errors.New("open /var/uploads/1: permission denied"), "failed to open upload directory"),
			wantStatus:      http.StatusInternalServerError,
			wantCode:        ErrCodeInternalError,
			messageRedacted: true,
		},
		{
			name:        "service rejected",
			err:         dds.NewServiceError(dds.OpAddDataFile, dds.FaultBadParameters, "invalid digest"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    ErrCodeSigningServiceRejected,
			wantMessage: "AddDataFile: invalid digest (status 101)",
		},
		{
			name:       "service bad signature",
			err:        dds.NewServiceError(dds.OpFinalizeSignature, dds.FaultBadSignature, "signature value does not verify"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   ErrCodeBadSignature,
		},
		{
			name:       "transport failure",
			err:        dds.NewTransportError(dds.OpStartSession, errors.New("connection refused")),
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeSigningServiceUnavailable,
		},
		{
			name:       "protocol failure wrapped by a caller",
			err:        fmt.Errorf("start: %w", dds.NewProtocolError(dds.OpStartSession, errors.New("EOF"))),
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeSigningServiceUnavailable,
		},
		{
			name:       "unknown container format",
			err:        container.NewFormatError("unknown container file extension \".zip\""),
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   ErrCodeUnsupportedContainer,
		},
		{
			name:       "malformed container",
			err:        container.NewMalformedError("not a zip archive"),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeMalformedContainer,
		},
		{
			name:       "missing data file",
			err:        container.NewMissingDataFileError("a.txt"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   ErrCodeMissingDataFile,
		},
		{
			name:       "digest mismatch",
			err:        container.NewDigestMismatchError("digest of a.txt does not match"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   ErrCodeBadDigest,
		},
		{
			name:       "bad certificate",
			err:        crypto.NewCertificateError("certificate has expired"),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadCertificate,
		},
		{
			name:            "token failure is redacted",
			err:             crypto.NewSigningError("token is locked"),
			wantStatus:      http.StatusInternalServerError,
			wantCode:        ErrCodeKeyError,
			messageRedacted: true,
		},
		{
			name:        "malformed request",
			err:         NewMalformedRequestError("invalid JSON"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    ErrCodeMalformedRequest,
			wantMessage: "invalid JSON",
		},
		{
			name:       "body too large",
			err:        fmt.Errorf("multipart: %w", &http.MaxBytesError{Limit: 64}),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   ErrCodeRequestTooLarge,
		},
		{
			name:            "unmapped error",
			err:             errors.New("something else"),
			wantStatus:      http.StatusInternalServerError,
			wantCode:        ErrCodeInternalError,
			messageRedacted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)

			resp := MapErrorToResponse(tt.err, r)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("got status %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if resp.StatusCodeText != http.StatusText(tt.wantStatus) {
				t.Errorf("got status text %q, want %q", resp.StatusCodeText, http.StatusText(tt.wantStatus))
			}
			if resp.HTTPMethod != http.MethodPost || resp.RequestURI != "/v1/sessions" {
				t.Errorf("unexpected request fields: %s %s", resp.HTTPMethod, resp.RequestURI)
			}
			if len(resp.Errors) != 1 {
				t.Fatalf("expected 1 detailed error, got %d", len(resp.Errors))
			}
			detail := resp.Errors[0]
			if detail.ErrorCode != tt.wantCode {
				t.Errorf("got error code %d, want %d", detail.ErrorCode, tt.wantCode)
			}
			if tt.wantMessage != "" && detail.ErrorCodeMessage != tt.wantMessage {
				t.Errorf("got message %q, want %q", detail.ErrorCodeMessage, tt.wantMessage)
			}
			if tt.messageRedacted && detail.ErrorCodeMessage != internalErrorMessage {
				t.Errorf("internal error details leaked: %q", detail.ErrorCodeMessage)
			}
		})
	}
}

func TestRespondWithErrorResponse(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/v1/sessions/abc", nil)
	rr := httptest.NewRecorder()

	RespondWithErrorResponse(rr, r, signing.NewNoActiveSessionError("no active signing session"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusNotFound)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("got content type %q", ct)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Errors[0].ErrorCode != ErrCodeNoActiveSession {
		t.Errorf("got error code %d", body.Errors[0].ErrorCode)
	}
	if body.ErrorDateTime == "" {
		t.Error("errorDateTime not set")
	}
}
