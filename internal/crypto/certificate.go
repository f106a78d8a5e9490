package crypto

// certificate.go - parsing of signer certificates.
//
// DigiDocService expects the signer certificate hex encoded (PrepareSignature.SignersCertificate).
// Certificates reach this package as PEM files (TOKEN_CHAIN_PATH, loaded with LoadCertificateChain), as hex strings (API clients that read
// the certificate from an ID card) or as base64 DER.

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ParseCertificate parses a single X.509 certificate given as PEM, hex encoded DER or base64 encoded DER.
func ParseCertificate(value string) (*x509.Certificate, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, NewValidationError("certificate is empty")
	}

	var der []byte
	switch {
	case strings.HasPrefix(value, "-----BEGIN"):
		block, _ := pem.Decode([]byte(value))
		if block == nil || block.Type != "CERTIFICATE" {
			return nil, NewValidationError("no CERTIFICATE block found in PEM data")
		}
		der = block.Bytes
	case IsHexDigest(value):
		raw, err := hex.DecodeString(value)
		if err != nil {
			return nil, WrapValidationError(err, "failed to decode hex certificate")
		}
		der = raw
	default:
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, WrapValidationError(err, "certificate is not PEM, hex or base64")
		}
		der = raw
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, WrapCertificateError(err, "failed to parse certificate")
	}
	return cert, nil
}

// CertificateHex returns the DER encoding of cert as a hex string
func CertificateHex(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	return hex.EncodeToString(cert.Raw)
}

// ParseCertificateChain parses one or more X.509 certificates from PEM-encoded data.
// The certificates are returned in the order they appear in the PEM data; non-certificate blocks are skipped.
func ParseCertificateChain(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	var block *pem.Block
	remaining := pemData

	for {
		block, remaining = pem.Decode(remaining)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, WrapCertificateError(err, "failed to parse certificate")
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, NewValidationError("no certificates found in PEM data")
	}

	return certs, nil
}

// LoadCertificateChain loads a certificate chain from a PEM file.
//
// Parameters:
//   - path: The file path (e.g., "./certs/signer.pem")
func LoadCertificateChain(path string) ([]*x509.Certificate, error) {
	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, WrapInternalError(err, fmt.Sprintf("failed to open directory %s", dir))
	}
	defer root.Close()

	pemData, err := root.ReadFile(filename)
	if err != nil {
		return nil, WrapInternalError(err, fmt.Sprintf("failed to read %s", path))
	}

	return ParseCertificateChain(pemData)
}

// CheckSigningCertificate checks that cert is currently valid, may be used for signatures
// and that its public key matches publicKey.
func CheckSigningCertificate(cert *x509.Certificate, publicKey any, now time.Time) error {
	if cert == nil {
		return NewCertificateError("certificate is nil")
	}
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return NewCertificateError(fmt.Sprintf("certificate %q is not valid at %s", cert.Subject.CommonName, now.Format(time.RFC3339)))
	}
	if cert.KeyUsage != 0 && cert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
		return NewCertificateError("certificate key usage does not allow signatures")
	}

	switch key := publicKey.(type) {
	case *rsa.PublicKey:
		certKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return NewCertificateError(fmt.Sprintf("certificate contains %T key, but expected *rsa.PublicKey", cert.PublicKey))
		}
		if !key.Equal(certKey) {
			return NewCertificateError("certificate public key does not match the RSA signing key")
		}
	case *ecdsa.PublicKey:
		certKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return NewCertificateError(fmt.Sprintf("certificate contains %T key, but expected *ecdsa.PublicKey", cert.PublicKey))
		}
		if !key.Equal(certKey) {
			return NewCertificateError("certificate public key does not match the ECDSA signing key")
		}
	default:
		return NewValidationError(fmt.Sprintf("unsupported public key type: %T (expected *rsa.PublicKey or *ecdsa.PublicKey)", publicKey))
	}

	return nil
}
