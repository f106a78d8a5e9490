// Package crypto provides the digest and signing primitives used by the hashcode signing workflow.
//
// Digests: BDOC hashcode containers carry SHA-256 and SHA-512 digests of their data files, DDOC containers
// carry SHA-1 digests. AlgorithmFromHex recognises the algorithm from the length of a hex encoded digest,
// which is how the SignedInfo digest returned by PrepareSignature is interpreted.
//
// Certificates: signer certificates are parsed from PEM, hex or base64 and handed to DigiDocService hex encoded.
//
// Local token: LocalToken signs SignedInfo digests with a key loaded from a PKCS#12 keystore.
// The public key of the token is exported as a JWK set.
//
// Errors returned by this package are *CryptoError values; use Code() to classify them.
package crypto
