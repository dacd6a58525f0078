package mission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
)

const syncDescription = "mongo"

// Synchronizer applies mission and crew events to the document store.
type Synchronizer struct {
	listener Listener
	store    Store
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(listener Listener, st Store) *Synchronizer {
	return &Synchronizer{listener: listener, store: st}
}

// Run consumes the mission topics until ctx is cancelled. Store and decode
// failures are logged and skipped.
func (s *Synchronizer) Run(ctx context.Context) {
	stream, err := s.listener.Listen([]string{TopicCreated, TopicUpdated, TopicCrewUpdated}, syncDescription)
	if err != nil {
		slog.Error("mission synchronizer failed to subscribe", "error", err)
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
		s.applyUpdated(ctx, tm.Message)
	case 2:
		s.applyCrewUpdated(ctx, tm.Message)
	default:
		slog.Error("unexpected topic index", "index", tm.TopicIndex)
	}
}

func (s *Synchronizer) applyCreated(ctx context.Context, msg broker.Message) {
	var ev CreatedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("error deserializing payload", "topic", msg.Topic, "error", err)
		return
	}

	var existing Document
	err := s.store.FindOneByField(ctx, store.CollectionMissions, "name", ev.Name, &existing)
	switch {
	case err == nil:
		slog.Info("skipped syncing created mission, name already exists", "id", ev.ID, "name", ev.Name)
		return
	case !errors.Is(err, errs.ErrNotFound):
		slog.Error("error checking mission name", "id", ev.ID, "error", err)
		return
	}

	doc := documentFromCreated(&ev)
	if err := s.store.InsertOne(ctx, store.CollectionMissions, &doc); err != nil {
		slog.Error("error creating mission in state", "id", ev.ID, "error", err)
	}
}

func (s *Synchronizer) applyUpdated(ctx context.Context, msg broker.Message) {
	var ev UpdatedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("error deserializing payload", "topic", msg.Topic, "error", err)
		return
	}

	patch := updateFromEvent(&ev)
	err := s.store.UpdateOneByID(ctx, store.CollectionMissions, ev.ID, &patch)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		slog.Info("skipped update for unknown mission", "id", ev.ID)
	case err != nil:
		slog.Error("error updating mission in state", "id", ev.ID, "error", err)
	}
}

// applyCrewUpdated upserts the (mission, astronaut) crew row, or deletes it
// when the event carries no roles.
func (s *Synchronizer) applyCrewUpdated(ctx context.Context, msg broker.Message) {
	var ev CrewUpdatedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("error deserializing payload", "topic", msg.Topic, "error", err)
		return
	}

	var existing CrewDocument
	err := s.store.FindOneByTwoFields(ctx, store.CollectionCrew,
		"mission_id", ev.MissionID, "astronaut_id", ev.AstronautID, &existing)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		if len(ev.Roles) == 0 {
			return // removal of an absent row is a no-op
		}
		doc := CrewDocument{
			ID:          uuid.NewString(),
			MissionID:   ev.MissionID,
			AstronautID: ev.AstronautID,
			Roles:       ev.Roles,
		}
		if err := s.store.InsertOne(ctx, store.CollectionCrew, &doc); err != nil {
			slog.Error("error adding to crew in state", "mission_id", ev.MissionID, "error", err)
		}
	case err != nil:
		slog.Error("error looking up crew in state", "mission_id", ev.MissionID, "error", err)
	case len(ev.Roles) == 0:
		if err := s.store.DeleteOneByID(ctx, store.CollectionCrew, existing.ID); err != nil {
			slog.Error("error removing crew in state", "mission_id", ev.MissionID, "error", err)
		}
	default:
		patch := crewRolesPatch{Roles: ev.Roles}
		if err := s.store.UpdateOneByID(ctx, store.CollectionCrew, existing.ID, &patch); err != nil {
			slog.Error("error updating crew in state", "mission_id", ev.MissionID, "error", err)
		}
	}
}
