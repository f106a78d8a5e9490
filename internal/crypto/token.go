package crypto

// token.go - local signing token.
//
// A signature can be produced either by the end user (the signing application computes the signature value
// over the SignedInfo digest returned by PrepareSignature) or by a token held by this service.
// The service token is a PKCS#12 keystore containing the private key, the signer certificate and optionally
// the CA certificates.
//
// The signature value is returned hex encoded, as FinalizeSignature expects it:
//   - RSA keys produce a PKCS#1 v1.5 signature
//   - ECDSA keys produce the fixed width r||s concatenation used by XML-DSig (not the ASN.1 DER form)

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	"software.sslmate.com/src/go-pkcs12"
)

// TokenSigner signs SignedInfo digests on behalf of a signer
type TokenSigner interface {
	// Certificate returns the signer certificate
	Certificate() *x509.Certificate

	// SignDigest signs a digest calculated with alg and returns the hex encoded signature value
	SignDigest(alg Algorithm, digest []byte) (string, error)
}

// LocalToken is a TokenSigner backed by an in-memory private key
type LocalToken struct {
	key   crypto.Signer
	cert  *x509.Certificate
	chain []*x509.Certificate
}

// LoadPKCS12Signer reads a PKCS#12 keystore from path and returns a LocalToken
func LoadPKCS12Signer(path, password string) (*LocalToken, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to open directory %s", filepath.Dir(path)))
	}
	defer root.Close()

	data, err := root.ReadFile(filepath.Base(path))
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to read keystore %s", path))
	}

	return NewPKCS12Signer(data, password)
}

// NewPKCS12Signer decodes PKCS#12 data and returns a LocalToken
func NewPKCS12Signer(data []byte, password string) (*LocalToken, error) {
	privateKey, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to decode PKCS#12 keystore")
	}

	signer, ok := privateKey.(crypto.Signer)
	if !ok {
		return nil, NewKeyManagementError(fmt.Sprintf("unsupported private key type %T", privateKey))
	}

	token, err := NewLocalToken(signer, cert)
	if err != nil {
		return nil, err
	}
	token.chain = caCerts
	return token, nil
}

// NewLocalToken creates a LocalToken from a private key and its certificate.
// Only RSA and ECDSA keys are supported.
func NewLocalToken(key crypto.Signer, cert *x509.Certificate) (*LocalToken, error) {
	if key == nil {
		return nil, NewKeyManagementError("private key is nil")
	}
	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
	default:
		return nil, NewKeyManagementError(fmt.Sprintf("unsupported private key type %T (expected RSA or ECDSA)", key))
	}

	if err := CheckSigningCertificate(cert, key.Public(), time.Now()); err != nil {
		return nil, err
	}

	return &LocalToken{key: key, cert: cert}, nil
}

func (t *LocalToken) Certificate() *x509.Certificate {
	return t.cert
}

// Chain returns the CA certificates that were stored with the key
func (t *LocalToken) Chain() []*x509.Certificate {
	return t.chain
}

// AddChain appends CA certificates kept outside the keystore.
// One of them must have issued the signer certificate.
func (t *LocalToken) AddChain(chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return NewValidationError("certificate chain is empty")
	}
	issued := slices.ContainsFunc(chain, func(ca *x509.Certificate) bool {
		return t.cert.CheckSignatureFrom(ca) == nil
	})
	if !issued {
		return NewCertificateError(fmt.Sprintf("no certificate in the chain issued %q", t.cert.Subject.CommonName))
	}
	t.chain = append(t.chain, chain...)
	return nil
}

// PublicKey returns the public key of the token
func (t *LocalToken) PublicKey() crypto.PublicKey {
	return t.key.Public()
}

func (t *LocalToken) SignDigest(alg Algorithm, digest []byte) (string, error) {
	if alg.Hash() == 0 {
		return "", NewValidationError(fmt.Sprintf("unsupported digest algorithm %q", string(alg)))
	}
	if len(digest) != alg.Size() {
		return "", NewValidationError(fmt.Sprintf("digest length %d does not match %s (%d bytes)", len(digest), alg, alg.Size()))
	}

	switch key := t.key.(type) {
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, alg.Hash(), digest)
		if err != nil {
			return "", WrapSigningError(err, "RSA signing failed")
		}
		return hex.EncodeToString(sig), nil

	case *ecdsa.PrivateKey:
		der, err := ecdsa.SignASN1(rand.Reader, key, digest)
		if err != nil {
			return "", WrapSigningError(err, "ECDSA signing failed")
		}
		raw, err := ecdsaSignatureToRaw(der, (key.Curve.Params().BitSize+7)/8)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	}

	return "", NewSigningError(fmt.Sprintf("unsupported private key type %T", t.key))
}

// ecdsaSignatureToRaw converts an ASN.1 ECDSA-Sig-Value to r||s, each left padded to size bytes
func ecdsaSignatureToRaw(der []byte, size int) ([]byte, error) {
	var (
		r, s  = new(big.Int), new(big.Int)
		inner cryptobyte.String
	)

	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, NewSigningError("malformed ECDSA signature")
	}

	if r.BitLen() > size*8 || s.BitLen() > size*8 {
		return nil, NewSigningError("ECDSA signature does not fit the curve size")
	}

	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}
