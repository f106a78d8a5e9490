// this file provides the digest algorithms used by signed document containers.
//
// BDOC containers use the SHA-2 family (SHA-256 by default, SHA-512 is also written to hashcode containers).
// Legacy DDOC containers only support SHA-1 - this is a constraint of the DIGIDOC-XML 1.3 format
// and is not configurable.
//
// DigiDocService transmits digest values base64 encoded, while signature preparation returns
// hex encoded values - both encodings are supported here.

package crypto

import (
	"crypto"
	"crypto/sha1" // #nosec G505 -- required by the DIGIDOC-XML 1.3 format
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algorithm is a digest algorithm name as used by DigiDocService (DigestType)
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA224 Algorithm = "sha224"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// xml-dsig / xml-enc algorithm identifiers
var algorithmURIs = map[Algorithm]string{
	SHA1:   "http://www.w3.org/2000/09/xmldsig#sha1",
	SHA224: "http://www.w3.org/2001/04/xmldsig-more#sha224",
	SHA256: "http://www.w3.org/2001/04/xmlenc#sha256",
	SHA384: "http://www.w3.org/2001/04/xmldsig-more#sha384",
	SHA512: "http://www.w3.org/2001/04/xmlenc#sha512",
}

// ParseAlgorithm accepts the DigiDocService name ("sha256"), the common hyphenated form ("SHA-256")
// or an xml-dsig URI and returns the matching Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for alg, uri := range algorithmURIs {
		if n == strings.ToLower(uri) {
			return alg, nil
		}
	}

	n = strings.ReplaceAll(n, "-", "")
	switch Algorithm(n) {
	case SHA1, SHA224, SHA256, SHA384, SHA512:
		return Algorithm(n), nil
	}
	return "", NewValidationError(fmt.Sprintf("unsupported digest algorithm %q", name))
}

// AlgorithmFromHex identifies the digest algorithm from the length of a hex encoded digest.
//
// 40 hex characters is SHA-1, 64 is SHA-256 and 128 is SHA-512.
// An empty Algorithm is returned for any other length or when the value is not hex.
func AlgorithmFromHex(digest string) Algorithm {
	if !IsHexDigest(digest) {
		return ""
	}
	switch len(digest) {
	case 40:
		return SHA1
	case 64:
		return SHA256
	case 128:
		return SHA512
	}
	return ""
}

// IsHexDigest reports whether s is a non-empty, even length string of hex characters
func IsHexDigest(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Hash returns the crypto.Hash for the algorithm (0 if unknown)
func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case SHA1:
		return crypto.SHA1
	case SHA224:
		return crypto.SHA224
	case SHA256:
		return crypto.SHA256
	case SHA384:
		return crypto.SHA384
	case SHA512:
		return crypto.SHA512
	}
	return 0
}

// URI returns the xml-dsig identifier for the algorithm
func (a Algorithm) URI() string {
	return algorithmURIs[a]
}

// Size returns the digest size in bytes (0 if unknown)
func (a Algorithm) Size() int {
	if h := a.Hash(); h != 0 {
		return h.Size()
	}
	return 0
}

func (a Algorithm) String() string {
	return string(a)
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New(), nil // #nosec G401 -- DDOC digest
	case SHA224:
		return sha256.New224(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, NewValidationError(fmt.Sprintf("unsupported digest algorithm %q", string(a)))
}

// Digest calculates the digest of data with the given algorithm.
func Digest(alg Algorithm, data []byte) ([]byte, error) {
	h, err := alg.newHash()
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// DigestReader calculates the digest of everything read from r.
func DigestReader(alg Algorithm, r io.Reader) ([]byte, error) {
	h, err := alg.newHash()
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return nil, WrapInternalError(err, "failed to hash data")
	}
	return h.Sum(nil), nil
}

// DigestBase64 calculates the digest of data and returns it base64 encoded (the encoding used by DigiDocService)
func DigestBase64(alg Algorithm, data []byte) (string, error) {
	sum, err := Digest(alg, data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// DigestHex calculates the digest of data and returns it hex encoded
func DigestHex(alg Algorithm, data []byte) (string, error) {
	sum, err := Digest(alg, data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// VerifyDigestBase64 checks that data matches the expected base64 encoded digest
func VerifyDigestBase64(alg Algorithm, data []byte, expected string) bool {
	got, err := DigestBase64(alg, data)
	if err != nil {
		return false
	}
	return got == strings.TrimSpace(expected)
}

// DecodeDigest decodes a digest value that may be hex or base64 encoded and checks its length against alg
func DecodeDigest(alg Algorithm, value string) ([]byte, error) {
	value = strings.TrimSpace(value)

	var (
		raw []byte
		err error
	)
	if IsHexDigest(value) && len(value) == alg.Size()*2 {
		raw, err = hex.DecodeString(value)
	} else {
		raw, err = base64.StdEncoding.DecodeString(value)
	}
	if err != nil {
		return nil, WrapValidationError(err, "digest is neither hex nor base64")
	}
	if len(raw) != alg.Size() {
		return nil, NewValidationError(fmt.Sprintf("digest length %d does not match %s (%d bytes)", len(raw), alg, alg.Size()))
	}
	return raw, nil
}
