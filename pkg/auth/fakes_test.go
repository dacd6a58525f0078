package auth

import (
	"context"
	"sync"

	"github.com/astrolabs/astroevents/pkg/astronaut"
	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/errs"
	"github.com/astrolabs/astroevents/pkg/store"
)

// fakeStore is an in-memory Store covering astronauts and token families.
type fakeStore struct {
	mu         sync.Mutex
	astronauts map[string]astronaut.Document
	families   map[string]RefreshTokenDocument
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		astronauts: make(map[string]astronaut.Document),
		families:   make(map[string]RefreshTokenDocument),
	}
}

func (s *fakeStore) family(id string) (RefreshTokenDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.families[id]
	return doc, ok
}

func (s *fakeStore) setFamily(doc RefreshTokenDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[doc.FamilyID] = doc
}

func (s *fakeStore) FindOneByID(_ context.Context, collection, id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if collection != store.CollectionRefreshTokens {
		return errs.ErrNotFound
	}
	doc, ok := s.families[id]
	if !ok {
		return errs.ErrNotFound
	}
	*out.(*RefreshTokenDocument) = doc
	return nil
}

func (s *fakeStore) FindOneByField(_ context.Context, _, field, value string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field != "name" {
		return errs.ErrNotFound
	}
	for _, doc := range s.astronauts {
		if doc.Name == value {
			*out.(*astronaut.Document) = doc
			return nil
		}
	}
	return errs.ErrNotFound
}

func (s *fakeStore) InsertOne(_ context.Context, _ string, document any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := *document.(*RefreshTokenDocument)
	s.families[doc.FamilyID] = doc
	return nil
}

func (s *fakeStore) UpdateOneByID(_ context.Context, _, id string, document any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.families[id]
	if !ok {
		return errs.ErrNotFound
	}
	doc.Signature = document.(*signaturePatch).Signature
	s.families[id] = doc
	return nil
}

func (s *fakeStore) DeleteOneByID(_ context.Context, _, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.families, id)
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

// fakeListener hands out one fakeStream.
type fakeListener struct {
	stream *fakeStream
	topics []string
}

func (l *fakeListener) Listen(topics []string, _ string) (broker.Stream, error) {
	l.topics = topics
	return l.stream, nil
}
