package ddstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

// NewSigner returns a local token with a fresh P-256 key and a self-signed signing certificate
func NewSigner(t testing.TB) *crypto.LocalToken {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   "MÄNNIK,MARI-LIIS,47101010033",
			SerialNumber: "PNOEE-47101010033",
			Country:      []string{"EE"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	token, err := crypto.NewLocalToken(key, cert)
	if err != nil {
		t.Fatalf("failed to create token: %v", err)
	}
	return token
}
