package crypto

import (
	"crypto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	abcSHA1Hex      = "a9993e364706816aba3e25717850c26c9cd0d89d"
	abcSHA256Hex    = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	abcSHA512Hex    = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"
	abcSHA1Base64   = "qZk+NkcGgWq6PiVxeFDCbJzQ2J0="
	abcSHA256Base64 = "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0="
)

func TestAlgorithmFromHex(t *testing.T) {
	tests := []struct {
		name   string
		digest string
		want   Algorithm
	}{
		{"40 hex characters is sha1", abcSHA1Hex, SHA1},
		{"64 hex characters is sha256", abcSHA256Hex, SHA256},
		{"128 hex characters is sha512", abcSHA512Hex, SHA512},
		{"uppercase hex is accepted", strings.ToUpper(abcSHA256Hex), SHA256},
		{"empty string", "", ""},
		{"sha224 length is not recognized", strings.Repeat("a", 56), ""},
		{"sha384 length is not recognized", strings.Repeat("a", 96), ""},
		{"odd length", strings.Repeat("a", 41), ""},
		{"non hex characters", strings.Repeat("z", 40), ""},
		{"base64 digest", abcSHA1Base64, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AlgorithmFromHex(tt.digest))
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    Algorithm
		wantErr bool
	}{
		{"sha256", SHA256, false},
		{"SHA-256", SHA256, false},
		{"sha1", SHA1, false},
		{"http://www.w3.org/2001/04/xmlenc#sha512", SHA512, false},
		{"http://www.w3.org/2000/09/xmldsig#sha1", SHA1, false},
		{"md5", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDigest(t *testing.T) {
	tests := []struct {
		alg        Algorithm
		wantHex    string
		wantBase64 string
	}{
		{SHA1, abcSHA1Hex, abcSHA1Base64},
		{SHA256, abcSHA256Hex, abcSHA256Base64},
	}

	for _, tt := range tests {
		t.Run(tt.alg.String(), func(t *testing.T) {
			gotHex, err := DigestHex(tt.alg, []byte("abc"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantHex, gotHex)

			gotBase64, err := DigestBase64(tt.alg, []byte("abc"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantBase64, gotBase64)

			assert.True(t, VerifyDigestBase64(tt.alg, []byte("abc"), tt.wantBase64))
			assert.False(t, VerifyDigestBase64(tt.alg, []byte("abd"), tt.wantBase64))
		})
	}

	_, err := Digest(Algorithm("md5"), []byte("abc"))
	assert.Error(t, err)
}

func TestAlgorithmMetadata(t *testing.T) {
	assert.Equal(t, crypto.SHA256, SHA256.Hash())
	assert.Equal(t, 20, SHA1.Size())
	assert.Equal(t, 64, SHA512.Size())
	assert.Equal(t, "http://www.w3.org/2001/04/xmlenc#sha256", SHA256.URI())
	assert.Zero(t, Algorithm("md5").Size())
}

func TestDecodeDigest(t *testing.T) {
	tests := []struct {
		name    string
		alg     Algorithm
		value   string
		wantErr bool
	}{
		{"hex sha1", SHA1, abcSHA1Hex, false},
		{"base64 sha1", SHA1, abcSHA1Base64, false},
		{"base64 sha256", SHA256, abcSHA256Base64, false},
		{"sha1 value for sha256", SHA256, abcSHA1Base64, true},
		{"garbage", SHA256, "not a digest!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := DecodeDigest(tt.alg, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, raw, tt.alg.Size())
		})
	}
}
