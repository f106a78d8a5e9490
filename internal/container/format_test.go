package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"contract.bdoc", FormatBDOC, false},
		{"contract.asice", FormatBDOC, false},
		{"contract.sce", FormatBDOC, false},
		{"CONTRACT.BDOC", FormatBDOC, false},
		{"dir/contract.AsiCe", FormatBDOC, false},
		{"contract.ddoc", FormatDDOC, false},
		{"Contract.DDOC", FormatDDOC, false},
		{"contract.pdf", "", true},
		{"contract.asics", "", true},
		{"contract", "", true},
		{"bdoc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if tt.wantErr {
				var containerErr *ContainerError
				require.True(t, errors.As(err, &containerErr), "expected a ContainerError, got %v", err)
				assert.Equal(t, ErrCodeUnknownFormat, containerErr.Code())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"bdoc", FormatBDOC, false},
		{"BDOC 2.1", FormatBDOC, false},
		{"ddoc", FormatDDOC, false},
		{"DIGIDOC-XML", FormatDDOC, false},
		{"DIGIDOC-XML 1.3", FormatDDOC, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.name)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatParts(t *testing.T) {
	assert.Equal(t, "BDOC", FormatBDOC.Name())
	assert.Equal(t, "2.1", FormatBDOC.Version())
	assert.Equal(t, "DIGIDOC-XML", FormatDDOC.Name())
	assert.Equal(t, "1.3", FormatDDOC.Version())
	assert.Equal(t, ".ddoc", FormatDDOC.Extension())
	assert.Equal(t, ".bdoc", FormatBDOC.Extension())
}
