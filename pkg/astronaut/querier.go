package astronaut

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
	"github.com/astrolabs/astroevents/pkg/token"
)

// liveDescription names the live-view consumer, separate from the
// projection so both observe every message independently.
const liveDescription = "live"

// Querier serves astronaut reads: direct store lookups and per-caller live
// views.
type Querier struct {
	listener Listener
	store    Store
}

// NewQuerier creates a Querier.
func NewQuerier(listener Listener, st Store) *Querier {
	return &Querier{listener: listener, store: st}
}

// crewRef is the slice of a crew row needed for the co-crew check.
type crewRef struct {
	MissionID string `bson:"mission_id"`
}

// canGet applies the read rules: any, own, or sharing a mission with the
// target.
func (q *Querier) canGet(ctx context.Context, claims *token.Claims, id string) (bool, error) {
	if claims.Permissions.Has(token.PermGetAnyAstronaut) {
		return true, nil
	}
	if claims.Permissions.Has(token.PermGetOwnAstronaut) && claims.AstronautID == id {
		return true, nil
	}
	if claims.Permissions.Has(token.PermGetAstronautIfCoCrew) {
		var mine, theirs []crewRef
		if err := q.store.FindAllByField(ctx, store.CollectionCrew, "astronaut_id", claims.AstronautID, &mine); err != nil {
			return false, err
		}
		if err := q.store.FindAllByField(ctx, store.CollectionCrew, "astronaut_id", id, &theirs); err != nil {
			return false, err
		}
		missions := make(map[string]bool, len(mine))
		for _, c := range mine {
			missions[c.MissionID] = true
		}
		for _, c := range theirs {
			if missions[c.MissionID] {
				return true, nil
			}
		}
	}
	return false, nil
}

// GetByID returns the astronaut with the given id.
func (q *Querier) GetByID(ctx context.Context, claims *token.Claims, id string) (*Astronaut, error) {
	allowed, err := q.canGet(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrForbidden
	}

	var doc Document
	if err := q.store.FindOneByID(ctx, store.CollectionAstronauts, id, &doc); err != nil {
		return nil, err
	}
	view := doc.View()
	return &view, nil
}

// Live returns a stream that first emits the current store snapshot of the
// astronaut and then one updated view per matching event.
//
// Authorization is checked at stream start; the token's expiry bounds the
// stream lifetime instead of per-event re-checks. The returned channel has
// capacity one: a slow consumer back-pressures the fold, nothing is
// dropped. The stream closes when ctx is cancelled (downstream gone), the
// token expires, or the underlying subscription ends.
func (q *Querier) Live(ctx context.Context, claims *token.Claims, id string) (<-chan Astronaut, error) {
	allowed, err := q.canGet(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrForbidden
	}

	var doc Document
	if err := q.store.FindOneByID(ctx, store.CollectionAstronauts, id, &doc); err != nil {
		return nil, err
	}
	view := doc.View()

	stream, err := q.listener.Listen([]string{TopicUpdated}, liveDescription)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithDeadline(ctx, claims.ExpiresAt.Time)
	out := make(chan Astronaut, 1)

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
				var ev UpdatedEvent
				if err := json.Unmarshal(tm.Message.Payload, &ev); err != nil {
					slog.Error("error deserializing payload", "topic", tm.Message.Topic, "error", err)
					continue
				}
				if ev.ID != id {
					continue
				}
				view.Apply(&ev)
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
