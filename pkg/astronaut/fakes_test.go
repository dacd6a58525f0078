package astronaut

import (
	"context"
	"sync"

	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
)

// fakeStore is an in-memory Store covering the collections this package
// touches.
type fakeStore struct {
	mu         sync.Mutex
	astronauts map[string]Document
	crews      []fakeCrew
	failWith   error
}

type fakeCrew struct {
	missionID   string
	astronautID string
}

func newFakeStore() *fakeStore {
	return &fakeStore{astronauts: make(map[string]Document)}
}

func (s *fakeStore) FindOneByID(_ context.Context, _, id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	doc, ok := s.astronauts[id]
	if !ok {
		return errs.ErrNotFound
	}
	*out.(*Document) = doc
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
	for _, doc := range s.astronauts {
		if doc.Name == value {
			*out.(*Document) = doc
			return nil
		}
	}
	return errs.ErrNotFound
}

func (s *fakeStore) FindAllByField(_ context.Context, collection, field, value string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if collection != store.CollectionCrew || field != "astronaut_id" {
		return nil
	}
	var refs []crewRef
	for _, c := range s.crews {
		if c.astronautID == value {
			refs = append(refs, crewRef{MissionID: c.missionID})
		}
	}
	*out.(*[]crewRef) = refs
	return nil
}

func (s *fakeStore) InsertOne(_ context.Context, _ string, document any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	doc := *document.(*Document)
	s.astronauts[doc.ID] = doc
	return nil
}

func (s *fakeStore) UpdateOneByID(_ context.Context, _, id string, document any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	doc, ok := s.astronauts[id]
	if !ok {
		return errs.ErrNotFound
	}
	patch := document.(*updateDocument)
	if patch.Name != nil {
		doc.Name = *patch.Name
	}
	if patch.PasswordHash != nil {
		doc.PasswordHash = *patch.PasswordHash
	}
	if patch.BirthDate != nil {
		doc.BirthDate = *patch.BirthDate
	}
	s.astronauts[id] = doc
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
