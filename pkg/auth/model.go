// Package auth implements the refresh-token family engine: credential
// exchange, rotation with reuse detection, revocation, and the projection
// of token events into the store.
package auth

import (
	"time"

	"github.com/astrolabs/astroevents/pkg/token"
)

// Topic names are part of the wire contract.
const (
	TopicRefreshTokenCreated = "refresh_token_created"
	TopicRefreshTokenRevoked = "refresh_token_revoked"
)

// RefreshTokenDocument is the refresh_tokens collection row, one per
// family. The stored signature always equals the fingerprint of the
// last-issued refresh token of that family.
type RefreshTokenDocument struct {
	FamilyID    string            `bson:"_id"`
	Signature   string            `bson:"signature"`
	AstronautID string            `bson:"astronaut_id"`
	Permissions token.Permissions `bson:"permissions"`
	ExpiresAt   time.Time         `bson:"expires_at"`
}

// signaturePatch rotates the stored fingerprint of an existing family.
type signaturePatch struct {
	Signature string `bson:"signature"`
}

// RefreshTokenCreatedEvent is the payload of TopicRefreshTokenCreated. It
// both creates a family and rotates an existing one.
type RefreshTokenCreatedEvent struct {
	FamilyID    string            `json:"family_id"`
	Signature   string            `json:"signature"`
	AstronautID string            `json:"astronaut_id"`
	Permissions token.Permissions `json:"permissions"`
}

// RefreshTokenRevokedEvent is the payload of TopicRefreshTokenRevoked.
type RefreshTokenRevokedEvent struct {
	FamilyID string `json:"family_id"`
}

// CredentialsInput is the password grant input.
type CredentialsInput struct {
	Name     string
	Password string
}

// TokenPair is the result of an exchange or refresh.
type TokenPair struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
}
