package mission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
	"github.com/astrolabs/astroevents/pkg/token"
)

// Store is the slice of the document store this package reads and writes.
// Implemented by *store.Client; faked in tests.
type Store interface {
	FindOneByID(ctx context.Context, collection, id string, out any) error
	FindOneByField(ctx context.Context, collection, field, value string, out any) error
	FindOneByTwoFields(ctx context.Context, collection, field1, value1, field2, value2 string, out any) error
	FindAllByField(ctx context.Context, collection, field, value string, out any) error
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

// Commander validates mission and crew mutations and emits the resulting
// events. It never writes the store.
type Commander struct {
	emitter Emitter
	store   Store
}

// NewCommander creates a Commander.
func NewCommander(emitter Emitter, st Store) *Commander {
	return &Commander{emitter: emitter, store: st}
}

// Create registers a new mission and makes the caller its leader. Two
// events are emitted: the mission itself and the initial crew assignment.
func (c *Commander) Create(ctx context.Context, claims *token.Claims, input CreateInput) (string, error) {
	if !claims.Permissions.Has(token.PermCreateMission) {
		return "", errs.ErrForbidden
	}

	var existing Document
	err := c.store.FindOneByField(ctx, store.CollectionMissions, "name", input.Name, &existing)
	if err == nil {
		return "", errs.ErrConflict
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return "", err
	}

	id := uuid.NewString()
	payload, err := json.Marshal(CreatedEvent{ID: id, Name: input.Name, StartDate: input.StartDate})
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}
	if err := c.emitter.Emit(TopicCreated, id, payload); err != nil {
		return "", err
	}

	crewPayload, err := json.Marshal(CrewUpdatedEvent{
		MissionID:   id,
		AstronautID: claims.AstronautID,
		Roles:       []Role{RoleLeader},
	})
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}
	if err := c.emitter.Emit(TopicCrewUpdated, id, crewPayload); err != nil {
		return "", err
	}

	slog.Info("mission created", "id", id, "leader", claims.AstronautID)
	return id, nil
}

// canUpdate applies the mission mutation rule: UpdateAnyMission, or
// UpdateMissionIfCrewMember while holding the LEADER role on the mission.
func (c *Commander) canUpdate(ctx context.Context, claims *token.Claims, missionID string) (bool, error) {
	if claims.Permissions.Has(token.PermUpdateAnyMission) {
		return true, nil
	}
	if !claims.Permissions.Has(token.PermUpdateMissionIfCrewMember) {
		return false, nil
	}

	var crew CrewDocument
	err := c.store.FindOneByTwoFields(ctx, store.CollectionCrew,
		"mission_id", missionID, "astronaut_id", claims.AstronautID, &crew)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, role := range crew.Roles {
		if role == RoleLeader {
			return true, nil
		}
	}
	return false, nil
}

// Update patches a mission.
func (c *Commander) Update(ctx context.Context, claims *token.Claims, id string, input UpdateInput) error {
	var existing Document
	if err := c.store.FindOneByID(ctx, store.CollectionMissions, id, &existing); err != nil {
		return err
	}

	allowed, err := c.canUpdate(ctx, claims, id)
	if err != nil {
		return err
	}
	if !allowed {
		return errs.ErrForbidden
	}

	if input.IsEmpty() {
		return errs.ErrNoFieldsToUpdate
	}

	if input.Name != nil {
		var collision Document
		err := c.store.FindOneByField(ctx, store.CollectionMissions, "name", *input.Name, &collision)
		if err == nil {
			return errs.ErrConflict
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
	}

	payload, err := json.Marshal(UpdatedEvent{ID: id, Name: input.Name, StartDate: input.StartDate})
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	if err := c.emitter.Emit(TopicUpdated, id, payload); err != nil {
		return err
	}

	slog.Info("mission updated", "id", id)
	return nil
}

// UpdateCrew assigns roles to an astronaut on a mission; empty roles
// removes the astronaut. Gated by the same leadership rule as Update.
func (c *Commander) UpdateCrew(ctx context.Context, claims *token.Claims, input UpdateCrewInput) error {
	var existing Document
	if err := c.store.FindOneByID(ctx, store.CollectionMissions, input.MissionID, &existing); err != nil {
		return err
	}

	allowed, err := c.canUpdate(ctx, claims, input.MissionID)
	if err != nil {
		return err
	}
	if !allowed {
		return errs.ErrForbidden
	}

	payload, err := json.Marshal(CrewUpdatedEvent{
		MissionID:   input.MissionID,
		AstronautID: input.AstronautID,
		Roles:       input.Roles,
	})
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	if err := c.emitter.Emit(TopicCrewUpdated, input.MissionID, payload); err != nil {
		return err
	}

	slog.Info("crew updated", "mission_id", input.MissionID, "astronaut_id", input.AstronautID, "roles", len(input.Roles))
	return nil
}
