package astronaut

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

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
	FindAllByField(ctx context.Context, collection, field, value string, out any) error
	InsertOne(ctx context.Context, collection string, document any) error
	UpdateOneByID(ctx context.Context, collection, id string, document any) error
}

// Emitter publishes domain events. Implemented by *broker.Emitter.
type Emitter interface {
	Emit(topic, key string, payload []byte) error
}

// Listener opens merged event streams. Implemented by *broker.Fanout.
type Listener interface {
	Listen(topics []string, description string) (broker.Stream, error)
}

// Commander validates astronaut mutations and emits the resulting events.
// It never writes the store; all writes happen through the projection.
type Commander struct {
	emitter Emitter
	store   Store
}

// NewCommander creates a Commander.
func NewCommander(emitter Emitter, st Store) *Commander {
	return &Commander{emitter: emitter, store: st}
}

// Create registers a new astronaut and returns its id. The name uniqueness
// check here is advisory: the projection re-checks at apply time, so a lost
// race surfaces as a created event that never materializes.
func (c *Commander) Create(ctx context.Context, input CreateInput) (string, error) {
	var existing Document
	err := c.store.FindOneByField(ctx, store.CollectionAstronauts, "name", input.Name, &existing)
	if err == nil {
		return "", errs.ErrConflict
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return "", err
	}

	hashed, err := hash.Password(input.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	payload, err := json.Marshal(CreatedEvent{
		ID:           id,
		Name:         input.Name,
		PasswordHash: hashed,
		BirthDate:    input.BirthDate,
	})
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}
	if err := c.emitter.Emit(TopicCreated, id, payload); err != nil {
		return "", err
	}

	slog.Info("astronaut created", "id", id)
	return id, nil
}

// Update patches an astronaut. Allowed with UpdateAnyAstronaut, or with
// UpdateOwnAstronaut when the target is the caller.
func (c *Commander) Update(ctx context.Context, claims *token.Claims, id string, input UpdateInput) error {
	allowed := claims.Permissions.Has(token.PermUpdateAnyAstronaut) ||
		(claims.Permissions.Has(token.PermUpdateOwnAstronaut) && claims.AstronautID == id)
	if !allowed {
		return errs.ErrForbidden
	}

	var existing Document
	if err := c.store.FindOneByID(ctx, store.CollectionAstronauts, id, &existing); err != nil {
		return err
	}

	if input.IsEmpty() {
		return errs.ErrNoFieldsToUpdate
	}

	if input.Name != nil {
		var collision Document
		err := c.store.FindOneByField(ctx, store.CollectionAstronauts, "name", *input.Name, &collision)
		if err == nil {
			return errs.ErrConflict
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
	}

	var hashed *string
	if input.Password != nil {
		h, err := hash.Password(*input.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		hashed = &h
	}

	payload, err := json.Marshal(UpdatedEvent{
		ID:           id,
		Name:         input.Name,
		PasswordHash: hashed,
		BirthDate:    input.BirthDate,
	})
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	if err := c.emitter.Emit(TopicUpdated, id, payload); err != nil {
		return err
	}

	slog.Info("astronaut updated", "id", id)
	return nil
}
