package astronaut

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabs/astroevents/pkg/broker"
)

func createdMessage(t *testing.T, ev CreatedEvent) broker.TopicMessage {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return broker.TopicMessage{TopicIndex: 0, Message: broker.Message{Topic: TopicCreated, Key: ev.ID, Payload: payload}}
}

func updatedMessage(t *testing.T, ev UpdatedEvent) broker.TopicMessage {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return broker.TopicMessage{TopicIndex: 1, Message: broker.Message{Topic: TopicUpdated, Key: ev.ID, Payload: payload}}
}

func TestApplyCreatedInserts(t *testing.T) {
	st := newFakeStore()
	s := NewSynchronizer(&fakeListener{stream: newFakeStream()}, st)

	s.apply(context.Background(), createdMessage(t, CreatedEvent{ID: "a1", Name: "gui", PasswordHash: "h", BirthDate: testBirthDate}))

	doc, ok := st.astronauts["a1"]
	require.True(t, ok)
	assert.Equal(t, "gui", doc.Name)
	assert.Equal(t, "h", doc.PasswordHash)
}

func TestApplyCreatedSkipsNameCollision(t *testing.T) {
	st := newFakeStore()
	st.astronauts["a1"] = Document{ID: "a1", Name: "gui"}
	s := NewSynchronizer(&fakeListener{stream: newFakeStream()}, st)

	s.apply(context.Background(), createdMessage(t, CreatedEvent{ID: "a2", Name: "gui"}))

	_, inserted := st.astronauts["a2"]
	assert.False(t, inserted, "collision must be skipped, not inserted")
	assert.Len(t, st.astronauts, 1)
}

func TestApplyIsIdempotent(t *testing.T) {
	st := newFakeStore()
	s := NewSynchronizer(&fakeListener{stream: newFakeStream()}, st)

	created := createdMessage(t, CreatedEvent{ID: "a1", Name: "gui", BirthDate: testBirthDate})
	newName := "gui2"
	updated := updatedMessage(t, UpdatedEvent{ID: "a1", Name: &newName})

	// Replaying a prefix of the log must converge to the same state.
	for i := 0; i < 2; i++ {
		s.apply(context.Background(), created)
		s.apply(context.Background(), updated)
	}

	require.Len(t, st.astronauts, 1)
	assert.Equal(t, "gui2", st.astronauts["a1"].Name)
	assert.Equal(t, testBirthDate, st.astronauts["a1"].BirthDate)
}

func TestApplyUpdatedSetsOnlyPresentFields(t *testing.T) {
	st := newFakeStore()
	st.astronauts["a1"] = Document{ID: "a1", Name: "gui", PasswordHash: "h", BirthDate: testBirthDate}
	s := NewSynchronizer(&fakeListener{stream: newFakeStream()}, st)

	newName := "gui2"
	s.apply(context.Background(), updatedMessage(t, UpdatedEvent{ID: "a1", Name: &newName}))

	doc := st.astronauts["a1"]
	assert.Equal(t, "gui2", doc.Name)
	assert.Equal(t, "h", doc.PasswordHash, "absent field must stay untouched")
	assert.Equal(t, testBirthDate, doc.BirthDate)
}

func TestApplyUpdatedNeverAutoCreates(t *testing.T) {
	st := newFakeStore()
	s := NewSynchronizer(&fakeListener{stream: newFakeStream()}, st)

	newName := "ghost"
	s.apply(context.Background(), updatedMessage(t, UpdatedEvent{ID: "missing", Name: &newName}))

	assert.Empty(t, st.astronauts)
}

func TestApplySkipsMalformedPayload(t *testing.T) {
	st := newFakeStore()
	s := NewSynchronizer(&fakeListener{stream: newFakeStream()}, st)

	s.apply(context.Background(), broker.TopicMessage{TopicIndex: 0, Message: broker.Message{Payload: []byte("not json")}})

	assert.Empty(t, st.astronauts)
}

func TestRunConsumesStreamUntilContextCancel(t *testing.T) {
	st := newFakeStore()
	listener := &fakeListener{stream: newFakeStream()}
	s := NewSynchronizer(listener, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	listener.stream.ch <- createdMessage(t, CreatedEvent{ID: "a1", Name: "gui"})

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		_, ok := st.astronauts["a1"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{TopicCreated, TopicUpdated}, listener.topics)
	assert.Equal(t, syncDescription, listener.description)

	cancel()
	<-done
}
