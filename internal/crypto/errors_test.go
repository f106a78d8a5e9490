package crypto

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// check to ensure error code handling has not been broken
func TestCryptoError_Code(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"validation", NewValidationError("test"), ErrCodeValidation},
		{"certificate", NewCertificateError("test"), ErrCodeCertificate},
		{"key_management", NewKeyManagementError("test"), ErrCodeKeyManagement},
		{"signing", NewSigningError("test"), ErrCodeSigning},
		{"internal", NewInternalError("test"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cryptoErr *CryptoError
			require.True(t, errors.As(tt.err, &cryptoErr), "error is not a CryptoError")
			assert.Equal(t, tt.wantCode, cryptoErr.Code())
		})
	}
}

func TestCryptoError_Wrap(t *testing.T) {
	err := WrapKeyManagementError(io.ErrUnexpectedEOF, "failed to read keystore")

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "failed to read keystore")
}
