package mission

import (
	"context"
	"sync"

	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
)

// fakeStore is an in-memory Store covering missions and crew.
type fakeStore struct {
	mu       sync.Mutex
	missions map[string]Document
	crews    map[string]CrewDocument
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		missions: make(map[string]Document),
		crews:    make(map[string]CrewDocument),
	}
}

func (s *fakeStore) addCrew(doc CrewDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crews[doc.ID] = doc
}

func (s *fakeStore) FindOneByID(_ context.Context, collection, id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	switch collection {
	case store.CollectionMissions:
		doc, ok := s.missions[id]
		if !ok {
			return errs.ErrNotFound
		}
		*out.(*Document) = doc
	case store.CollectionCrew:
		doc, ok := s.crews[id]
		if !ok {
			return errs.ErrNotFound
		}
		*out.(*CrewDocument) = doc
	default:
		return errs.ErrNotFound
	}
	return nil
}

func (s *fakeStore) FindOneByField(_ context.Context, _, field, value string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if field != "name" {
		return errs.ErrNotFound
	}
	for _, doc := range s.missions {
		if doc.Name == value {
			*out.(*Document) = doc
			return nil
		}
	}
	return errs.ErrNotFound
}

func (s *fakeStore) FindOneByTwoFields(_ context.Context, _, _, missionID, _, astronautID string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	for _, doc := range s.crews {
		if doc.MissionID == missionID && doc.AstronautID == astronautID {
			*out.(*CrewDocument) = doc
			return nil
		}
	}
	return errs.ErrNotFound
}

func (s *fakeStore) FindAllByField(_ context.Context, _, field, value string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	var docs []CrewDocument
	for _, doc := range s.crews {
		if (field == "mission_id" && doc.MissionID == value) ||
			(field == "astronaut_id" && doc.AstronautID == value) {
			docs = append(docs, doc)
		}
	}
	*out.(*[]CrewDocument) = docs
	return nil
}

func (s *fakeStore) InsertOne(_ context.Context, _ string, document any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	switch doc := document.(type) {
	case *Document:
		s.missions[doc.ID] = *doc
	case *CrewDocument:
		s.crews[doc.ID] = *doc
	}
	return nil
}

func (s *fakeStore) UpdateOneByID(_ context.Context, collection, id string, document any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	switch collection {
	case store.CollectionMissions:
		doc, ok := s.missions[id]
		if !ok {
			return errs.ErrNotFound
		}
		patch := document.(*updateDocument)
		if patch.Name != nil {
			doc.Name = *patch.Name
		}
		if patch.StartDate != nil {
			doc.StartDate = *patch.StartDate
		}
		s.missions[id] = doc
	case store.CollectionCrew:
		doc, ok := s.crews[id]
		if !ok {
			return errs.ErrNotFound
		}
		doc.Roles = document.(*crewRolesPatch).Roles
		s.crews[id] = doc
	default:
		return errs.ErrNotFound
	}
	return nil
}

func (s *fakeStore) DeleteOneByID(_ context.Context, _, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	delete(s.crews, id)
	return nil
}

// fakeEmitter records emitted events.
type fakeEmitter struct {
	mu      sync.Mutex
	emitted []emittedEvent
}

type emittedEvent struct {
	topic   string
	key     string
	payload []byte
}

func (e *fakeEmitter) Emit(topic, key string, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, emittedEvent{topic: topic, key: key, payload: payload})
	return nil
}

func (e *fakeEmitter) events() []emittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emittedEvent(nil), e.emitted...)
}

// fakeStream is a Stream fed directly by the test.
type fakeStream struct {
	ch     chan broker.TopicMessage
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan broker.TopicMessage, 16), closed: make(chan struct{})}
}

func (s *fakeStream) C() <-chan broker.TopicMessage { return s.ch }
func (s *fakeStream) Close()                        { s.once.Do(func() { close(s.closed) }) }

// fakeListener hands out one fakeStream and records the requested topics.
type fakeListener struct {
	stream      *fakeStream
	topics      []string
	description string
}

func (l *fakeListener) Listen(topics []string, description string) (broker.Stream, error) {
	l.topics = topics
	l.description = description
	return l.stream, nil
}
