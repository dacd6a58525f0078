// Package token signs and verifies the JWT pairs used by all services.
//
// Every service verifies with a list of public keys (rotation: tokens signed
// by a retiring key stay valid until they expire). Only the auth service
// holds the private key and can mint tokens.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes. The refresh TTL is also the stored family expiry.
const (
	RefreshTokenTTL = 7 * 24 * time.Hour
	AccessTokenTTL  = 15 * time.Minute
)

// signatureLength is how many trailing characters of a serialized refresh
// token form its family fingerprint. Unforgeable because the tail of a JWT
// is part of its RSA signature.
const signatureLength = 16

// Claims are the custom claims carried by both refresh and access tokens.
type Claims struct {
	FamilyID    string      `json:"fid"`
	AstronautID string      `json:"aid"`
	Permissions Permissions `json:"per"`
	jwt.RegisteredClaims
}

// Verifier validates tokens against a set of acceptance public keys.
type Verifier struct {
	keys []*rsa.PublicKey
}

// NewVerifier parses the PEM-encoded public keys. At least one is required.
func NewVerifier(publicKeysPEM []string) (*Verifier, error) {
	if len(publicKeysPEM) == 0 {
		return nil, errors.New("no public keys provided")
	}
	keys := make([]*rsa.PublicKey, 0, len(publicKeysPEM))
	for i, pem := range publicKeysPEM {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse public key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return &Verifier{keys: keys}, nil
}

// Validate verifies signature and expiry against every acceptance key and
// returns the claims of the first key that matches.
func (v *Verifier) Validate(raw string) (*Claims, error) {
	var lastErr error
	for _, key := range v.keys {
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("token rejected by all keys: %w", lastErr)
}

// Signer is a Verifier that can also mint tokens.
type Signer struct {
	Verifier
	key *rsa.PrivateKey
}

// NewSigner parses the acceptance public keys and the signing private key.
func NewSigner(publicKeysPEM []string, privateKeyPEM string) (*Signer, error) {
	verifier, err := NewVerifier(publicKeysPEM)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{Verifier: *verifier, key: key}, nil
}

// Produce mints a token with the given custom claims expiring after ttl.
// Every token gets a fresh jti, so two tokens minted from the same claims
// within the same second still serialize (and fingerprint) differently.
func (s *Signer) Produce(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return raw, nil
}

// Signature returns the family fingerprint of a serialized token.
func Signature(raw string) string {
	if len(raw) <= signatureLength {
		return raw
	}
	return raw[len(raw)-signatureLength:]
}
