package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/astrolabs/astroevents/pkg/astronaut"
	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/hash"
	"github.com/astrolabs/astroevents/pkg/store"
	"github.com/astrolabs/astroevents/pkg/token"
)

// Store is the slice of the document store this package reads and writes.
// Implemented by *store.Client; faked in tests.
type Store interface {
	FindOneByID(ctx context.Context, collection, id string, out any) error
	FindOneByField(ctx context.Context, collection, field, value string, out any) error
	InsertOne(ctx context.Context, collection string, document any) error
	UpdateOneByID(ctx context.Context, collection, id string, document any) error
	DeleteOneByID(ctx context.Context, collection, id string) error
}

// Emitter publishes domain events. Implemented by *broker.Emitter.
type Emitter interface {
	Emit(topic, key string, payload []byte) error
}

// Listener opens merged event streams. Implemented by *broker.Fanout.
type Listener interface {
	Listen(topics []string, description string) (broker.Stream, error)
}

// Commander drives the token family state machine. A family moves
// Active -> Active on rotation and reaches the absorbing Revoked state on
// explicit revocation or on reuse detection.
type Commander struct {
	emitter Emitter
	store   Store
	signer  *token.Signer
}

// NewCommander creates a Commander.
func NewCommander(emitter Emitter, st Store, signer *token.Signer) *Commander {
	return &Commander{emitter: emitter, store: st, signer: signer}
}

// Exchange trades astronaut credentials for a fresh token pair, starting a
// new family.
func (c *Commander) Exchange(ctx context.Context, input CredentialsInput) (*TokenPair, error) {
	var doc astronaut.Document
	err := c.store.FindOneByField(ctx, store.CollectionAstronauts, "name", input.Name, &doc)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := hash.Verify(input.Password, doc.PasswordHash); err != nil {
		return nil, errs.ErrBadCredentials
	}

	claims := token.Claims{
		FamilyID:    uuid.NewString(),
		AstronautID: doc.ID,
		Permissions: token.PasswordGrantPermissions,
	}
	pair, err := c.mintPair(claims)
	if err != nil {
		return nil, err
	}
	if err := c.emitCreated(claims, token.Signature(pair.RefreshToken)); err != nil {
		return nil, err
	}

	slog.Info("token family created", "family_id", claims.FamilyID, "astronaut_id", claims.AstronautID)
	return pair, nil
}

// Refresh rotates a family: the presented refresh token must be valid,
// its family known, and its fingerprint equal to the stored one. A
// fingerprint mismatch means a stale token is being replayed, possibly a
// stolen one, so the whole family is revoked before refusing.
func (c *Commander) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	claims, err := c.signer.Validate(rawToken)
	if err != nil {
		return nil, errs.ErrForbidden
	}

	var family RefreshTokenDocument
	err = c.store.FindOneByID(ctx, store.CollectionRefreshTokens, claims.FamilyID, &family)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrForbidden
	}
	if err != nil {
		return nil, err
	}

	if family.Signature != token.Signature(rawToken) {
		slog.Warn("refresh token reuse detected, revoking family", "family_id", claims.FamilyID)
		if err := c.emitRevoked(claims.FamilyID); err != nil {
			return nil, err
		}
		return nil, errs.ErrForbidden
	}

	// A token may never carry more than its family grants.
	if !claims.Permissions.Subset(family.Permissions) {
		return nil, errs.ErrForbidden
	}

	next := token.Claims{
		FamilyID:    claims.FamilyID,
		AstronautID: claims.AstronautID,
		Permissions: claims.Permissions,
	}
	pair, err := c.mintPair(next)
	if err != nil {
		return nil, err
	}
	if err := c.emitCreated(next, token.Signature(pair.RefreshToken)); err != nil {
		return nil, err
	}

	slog.Info("token family rotated", "family_id", next.FamilyID)
	return pair, nil
}

// Revoke terminates the family of a valid refresh token.
func (c *Commander) Revoke(ctx context.Context, rawToken string) error {
	claims, err := c.signer.Validate(rawToken)
	if err != nil {
		return errs.ErrForbidden
	}
	if err := c.emitRevoked(claims.FamilyID); err != nil {
		return err
	}
	slog.Info("token family revoked", "family_id", claims.FamilyID)
	return nil
}

// mintPair signs a refresh and an access token carrying the same family,
// subject, and permissions.
func (c *Commander) mintPair(claims token.Claims) (*TokenPair, error) {
	refresh, err := c.signer.Produce(claims, token.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	access, err := c.signer.Produce(claims, token.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{RefreshToken: refresh, AccessToken: access}, nil
}

func (c *Commander) emitCreated(claims token.Claims, signature string) error {
	payload, err := json.Marshal(RefreshTokenCreatedEvent{
		FamilyID:    claims.FamilyID,
		Signature:   signature,
		AstronautID: claims.AstronautID,
		Permissions: claims.Permissions,
	})
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	return c.emitter.Emit(TopicRefreshTokenCreated, claims.FamilyID, payload)
}

func (c *Commander) emitRevoked(familyID string) error {
	payload, err := json.Marshal(RefreshTokenRevokedEvent{FamilyID: familyID})
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	return c.emitter.Emit(TopicRefreshTokenRevoked, familyID, payload)
}
