package api

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/astrolabs/astroevents/pkg/token"
)

func testKeyPair(t *testing.T) (privatePEM, publicPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
	return privatePEM, publicPEM
}

func newTestVerifier(t *testing.T) *token.Verifier {
	t.Helper()
	_, publicPEM := testKeyPair(t)
	verifier, err := token.NewVerifier([]string{publicPEM})
	require.NoError(t, err)
	return verifier
}

func newTestSignerAPI(t *testing.T) *token.Signer {
	t.Helper()
	privatePEM, publicPEM := testKeyPair(t)
	signer, err := token.NewSigner([]string{publicPEM}, privatePEM)
	require.NoError(t, err)
	return signer
}
