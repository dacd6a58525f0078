package astronaut

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
)

// syncDescription names the projection consumer; together with the topic and
// pod id it forms the consumer group identity.
const syncDescription = "mongo"

// Synchronizer applies astronaut events to the document store. Applications
// are idempotent: creates skip on name collision, updates $set by id only.
type Synchronizer struct {
	listener Listener
	store    Store
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(listener Listener, st Store) *Synchronizer {
	return &Synchronizer{listener: listener, store: st}
}

// Run consumes the astronaut topics until ctx is cancelled. Store and
// decode failures are logged and skipped; the event is not redelivered
// because offsets are committed at fan-out, not here.
func (s *Synchronizer) Run(ctx context.Context) {
	stream, err := s.listener.Listen([]string{TopicCreated, TopicUpdated}, syncDescription)
	if err != nil {
		slog.Error("astronaut synchronizer failed to subscribe", "error", err)
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
	err := s.store.FindOneByField(ctx, store.CollectionAstronauts, "name", ev.Name, &existing)
	switch {
	case err == nil:
		slog.Info("skipped syncing created astronaut, name already exists", "id", ev.ID, "name", ev.Name)
		return
	case !errors.Is(err, errs.ErrNotFound):
		slog.Error("error checking astronaut name", "id", ev.ID, "error", err)
		return
	}

	doc := documentFromCreated(&ev)
	if err := s.store.InsertOne(ctx, store.CollectionAstronauts, &doc); err != nil {
		slog.Error("error creating astronaut in state", "id", ev.ID, "error", err)
	}
}

func (s *Synchronizer) applyUpdated(ctx context.Context, msg broker.Message) {
	var ev UpdatedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("error deserializing payload", "topic", msg.Topic, "error", err)
		return
	}

	patch := updateFromEvent(&ev)
	err := s.store.UpdateOneByID(ctx, store.CollectionAstronauts, ev.ID, &patch)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// Never auto-create from an update.
		slog.Info("skipped update for unknown astronaut", "id", ev.ID)
	case err != nil:
		slog.Error("error updating astronaut in state", "id", ev.ID, "error", err)
	}
}
