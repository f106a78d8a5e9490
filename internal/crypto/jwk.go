// JWK (JSON Web Key) export of the local signing token
//
// the public key of the service token is published at /.well-known/jwks.json so relying parties can
// pin the key that produced server side signatures without parsing the signed containers.
// Reference: https://datatracker.ietf.org/doc/html/rfc7517 (JSON Web Key standard)

package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// PublicKeyToJWK converts an RSA or ECDSA public key to JWK format
func PublicKeyToJWK(publicKey crypto.PublicKey, keyID string) (jwk.Key, error) {
	if publicKey == nil {
		return nil, NewValidationError("public key is nil")
	}
	if keyID == "" {
		return nil, NewValidationError("keyID is required")
	}

	var alg jwa.SignatureAlgorithm
	switch k := publicKey.(type) {
	case *rsa.PublicKey:
		alg = jwa.RS256()
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			alg = jwa.ES256()
		case elliptic.P384():
			alg = jwa.ES384()
		case elliptic.P521():
			alg = jwa.ES512()
		default:
			return nil, NewValidationError(fmt.Sprintf("unsupported curve %s", k.Curve.Params().Name))
		}
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported public key type %T", publicKey))
	}

	key, err := jwk.Import(publicKey)
	if err != nil {
		return nil, WrapInternalError(err, "failed to create JWK from public key")
	}

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, WrapInternalError(err, "failed to set key ID")
	}
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, WrapInternalError(err, "failed to set algorithm")
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, WrapInternalError(err, "failed to set key usage")
	}

	return key, nil
}

// KeyIDFromPublicKey generates a key ID using the SHA-256 thumbprint of the key (RFC 7638).
// Returns the first 16 characters of the hex-encoded thumbprint.
func KeyIDFromPublicKey(publicKey crypto.PublicKey) (string, error) {
	jwkKey, err := jwk.Import(publicKey)
	if err != nil {
		return "", WrapValidationError(err, "failed to import key")
	}

	thumbprint, err := jwkKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", WrapInternalError(err, "failed to generate thumbprint")
	}

	return fmt.Sprintf("%x", thumbprint)[:16], nil
}

// PublicKeyToJWKSet returns a JWK set holding the public key of the token's signer certificate
func PublicKeyToJWKSet(signer TokenSigner) (jwk.Set, error) {
	if signer == nil || signer.Certificate() == nil {
		return nil, NewValidationError("signer has no certificate")
	}
	publicKey := signer.Certificate().PublicKey

	keyID, err := KeyIDFromPublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	key, err := PublicKeyToJWK(publicKey, keyID)
	if err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, WrapInternalError(err, "failed to add key to JWK set")
	}
	return set, nil
}
