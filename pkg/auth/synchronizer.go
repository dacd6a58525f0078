package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
	"github.com/astrolabs/astroevents/pkg/token"
)

const syncDescription = "mongo"

// Synchronizer applies token family events to the store: created events
// insert new families or rotate the signature of existing ones, revoked
// events delete the family.
type Synchronizer struct {
	listener Listener
	store    Store

	// now is replaced by tests.
	now func() time.Time
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(listener Listener, st Store) *Synchronizer {
	return &Synchronizer{listener: listener, store: st, now: time.Now}
}

// Run consumes the token topics until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	stream, err := s.listener.Listen([]string{TopicRefreshTokenCreated, TopicRefreshTokenRevoked}, syncDescription)
	if err != nil {
		slog.Error("token synchronizer failed to subscribe", "error", err)
		return
	}
	defer stream.Close()

	for {
		select {
		case tm, ok := <-stream.C():
			if !ok {
				return
			}
			s.apply(ctx, tm)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Synchronizer) apply(ctx context.Context, tm broker.TopicMessage) {
	switch tm.TopicIndex {
	case 0:
		s.applyCreated(ctx, tm.Message)
	case 1:
		s.applyRevoked(ctx, tm.Message)
	default:
		slog.Error("unexpected topic index", "index", tm.TopicIndex)
	}
}

func (s *Synchronizer) applyCreated(ctx context.Context, msg broker.Message) {
	var ev RefreshTokenCreatedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("error deserializing payload", "topic", msg.Topic, "error", err)
		return
	}

	var existing RefreshTokenDocument
	err := s.store.FindOneByID(ctx, store.CollectionRefreshTokens, ev.FamilyID, &existing)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		doc := RefreshTokenDocument{
			FamilyID:    ev.FamilyID,
			Signature:   ev.Signature,
			AstronautID: ev.AstronautID,
			Permissions: ev.Permissions,
			ExpiresAt:   s.now().Add(token.RefreshTokenTTL),
		}
		if err := s.store.InsertOne(ctx, store.CollectionRefreshTokens, &doc); err != nil {
			slog.Error("error inserting refresh token in state", "family_id", ev.FamilyID, "error", err)
		}
	case err != nil:
		slog.Error("error looking up refresh token in state", "family_id", ev.FamilyID, "error", err)
	default:
		// Rotation: only the fingerprint moves.
		patch := signaturePatch{Signature: ev.Signature}
		if err := s.store.UpdateOneByID(ctx, store.CollectionRefreshTokens, ev.FamilyID, &patch); err != nil {
			slog.Error("error rotating refresh token in state", "family_id", ev.FamilyID, "error", err)
		}
	}
}

func (s *Synchronizer) applyRevoked(ctx context.Context, msg broker.Message) {
	var ev RefreshTokenRevokedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("error deserializing payload", "topic", msg.Topic, "error", err)
		return
	}
	if err := s.store.DeleteOneByID(ctx, store.CollectionRefreshTokens, ev.FamilyID); err != nil {
		slog.Error("error deleting refresh token in state", "family_id", ev.FamilyID, "error", err)
	}
}
