package mission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
	"github.com/astrolabs/astroevents/pkg/token"
)

const liveDescription = "live"

// Querier serves mission reads: direct lookups, crew listings, and per-
// caller live views of one mission.
type Querier struct {
	listener Listener
	store    Store
}

// NewQuerier creates a Querier.
func NewQuerier(listener Listener, st Store) *Querier {
	return &Querier{listener: listener, store: st}
}

// canGet applies the read rule: any, or crew member of the mission.
func (q *Querier) canGet(ctx context.Context, claims *token.Claims, missionID string) (bool, error) {
	if claims.Permissions.Has(token.PermGetAnyMission) {
		return true, nil
	}
	if !claims.Permissions.Has(token.PermGetMissionIfCrewMember) {
		return false, nil
	}
	var crew CrewDocument
	err := q.store.FindOneByTwoFields(ctx, store.CollectionCrew,
		"mission_id", missionID, "astronaut_id", claims.AstronautID, &crew)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID returns the mission with the given id.
func (q *Querier) GetByID(ctx context.Context, claims *token.Claims, id string) (*Mission, error) {
	allowed, err := q.canGet(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrForbidden
	}

	var doc Document
	if err := q.store.FindOneByID(ctx, store.CollectionMissions, id, &doc); err != nil {
		return nil, err
	}
	view := doc.View()
	return &view, nil
}

// CrewOf lists the crew of one mission.
func (q *Querier) CrewOf(ctx context.Context, claims *token.Claims, missionID string) ([]CrewEntry, error) {
	allowed, err := q.canGet(ctx, claims, missionID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrForbidden
	}

	docs, err := q.crewByField(ctx, "mission_id", missionID)
	if err != nil {
		return nil, err
	}
	entries := make([]CrewEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, CrewEntry{AstronautID: d.AstronautID, Roles: d.Roles})
	}
	return entries, nil
}

// MissionRef is one mission an astronaut is assigned to.
type MissionRef struct {
	MissionID string `json:"mission_id"`
	Roles     []Role `json:"roles"`
}

// MissionsOf lists the missions an astronaut is crew on.
func (q *Querier) MissionsOf(ctx context.Context, claims *token.Claims, astronautID string) ([]MissionRef, error) {
	allowed := claims.Permissions.Has(token.PermGetAnyAstronaut) ||
		claims.Permissions.Has(token.PermGetAstronautIfCoCrew) ||
		(claims.Permissions.Has(token.PermGetOwnAstronaut) && claims.AstronautID == astronautID)
	if !allowed {
		return nil, errs.ErrForbidden
	}

	docs, err := q.crewByField(ctx, "astronaut_id", astronautID)
	if err != nil {
		return nil, err
	}
	refs := make([]MissionRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, MissionRef{MissionID: d.MissionID, Roles: d.Roles})
	}
	return refs, nil
}

func (q *Querier) crewByField(ctx context.Context, field, value string) ([]CrewDocument, error) {
	var docs []CrewDocument
	if err := q.store.FindAllByField(ctx, store.CollectionCrew, field, value, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Live returns a stream that first emits the current mission view (mission
// plus crew) and then one updated view per matching event. Lifetime and
// backpressure semantics match the astronaut live view: capacity-one
// channel, bounded by downstream cancellation and token expiry.
func (q *Querier) Live(ctx context.Context, claims *token.Claims, id string) (<-chan View, error) {
	allowed, err := q.canGet(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrForbidden
	}

	var doc Document
	if err := q.store.FindOneByID(ctx, store.CollectionMissions, id, &doc); err != nil {
		return nil, err
	}
	crew, err := q.crewByField(ctx, "mission_id", id)
	if err != nil {
		return nil, err
	}

	view := View{Mission: doc.View()}
	for _, d := range crew {
		view.Crew = append(view.Crew, CrewEntry{AstronautID: d.AstronautID, Roles: d.Roles})
	}

	stream, err := q.listener.Listen([]string{TopicUpdated, TopicCrewUpdated}, liveDescription)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithDeadline(ctx, claims.ExpiresAt.Time)
	out := make(chan View, 1)

	go func() {
		defer cancel()
		defer close(out)
		defer stream.Close()

		// out is empty and has capacity one, so the snapshot never blocks
		// and is delivered even when the token has already expired.
		out <- view

		for {
			select {
			case tm, ok := <-stream.C():
				if !ok {
					return
				}
				if !q.fold(&view, id, tm.TopicIndex, tm.Message.Payload) {
					continue
				}
				select {
				case out <- view:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// fold applies one event to the view and reports whether it was relevant.
func (q *Querier) fold(view *View, id string, topicIndex int, payload []byte) bool {
	switch topicIndex {
	case 0:
		var ev UpdatedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			slog.Error("error deserializing payload", "error", err)
			return false
		}
		if ev.ID != id {
			return false
		}
		view.Apply(&ev)
		return true
	case 1:
		var ev CrewUpdatedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			slog.Error("error deserializing payload", "error", err)
			return false
		}
		if ev.MissionID != id {
			return false
		}
		view.ApplyCrew(&ev)
		return true
	default:
		return false
	}
}
