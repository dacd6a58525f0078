package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

const (
	// subscriberBuffer is the capacity of each subscriber channel. A full
	// buffer slows the pump down; it never causes a drop.
	subscriberBuffer = 4096

	// publishRetryDelay is how long the pump yields when a subscriber
	// buffer is full before trying again.
	publishRetryDelay = 5 * time.Millisecond

	// consumeRetryDelay spaces out reconnect attempts after a consumer
	// group session fails.
	consumeRetryDelay = time.Second
)

// errNoSubscribers makes the pump exit without committing when a message
// could not be handed to anyone. Redelivery on the next subscription is
// intentional.
var errNoSubscribers = errors.New("no live subscribers")

// Fanout owns at most one broker subscription per (topic, description) pair
// and broadcasts each received message to every in-process subscriber of
// that pair.
//
// The identifier topic__description__group doubles as the Kafka consumer
// group name, so two different descriptions on the same topic are distinct
// logical consumers and each sees every message.
type Fanout struct {
	brokers []string
	groupID string

	// mu guards groups and pumps and serializes subscriber-count
	// transitions, so a pump can never be started and stopped
	// concurrently. It is never held across a network call.
	mu     sync.Mutex
	groups map[string]sarama.ConsumerGroup
	pumps  map[string]*pump

	// newGroup builds the consumer group client for an identifier.
	// Replaced by tests.
	newGroup func(identifier string) (sarama.ConsumerGroup, error)
}

// NewFanout creates a fan-out for the given brokers. groupID is the
// process-wide suffix (the pod id) appended to every identifier.
func NewFanout(brokers []string, groupID string) *Fanout {
	f := &Fanout{
		brokers: brokers,
		groupID: groupID,
		groups:  make(map[string]sarama.ConsumerGroup),
		pumps:   make(map[string]*pump),
	}
	f.newGroup = f.dialGroup
	return f
}

func (f *Fanout) dialGroup(identifier string) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	// Marked offsets are flushed asynchronously. Marking happens only
	// after a successful broadcast, so an unbroadcast message is never
	// committed.
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Offsets.AutoCommit.Interval = time.Second
	return sarama.NewConsumerGroup(f.brokers, identifier, cfg)
}

func (f *Fanout) identifier(topic, description string) string {
	return fmt.Sprintf("%s__%s__%s", topic, description, f.groupID)
}

// Subscribe returns a fresh receive endpoint for the given pair. The broker
// subscription is created lazily on first use and lives for the process
// lifetime; the pump goroutine runs only while subscribers exist.
func (f *Fanout) Subscribe(topic, description string) (*Subscription, error) {
	identifier := f.identifier(topic, description)

	group, err := f.group(identifier)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pumps[identifier]
	if !ok {
		p = newPump(f, topic, identifier)
		f.pumps[identifier] = p
	}
	sub, first := p.add()
	if first {
		ctx, cancel := context.WithCancel(context.Background())
		p.mu.Lock()
		p.cancel = cancel
		p.mu.Unlock()
		go p.run(ctx, group)
	}
	return sub, nil
}

// group returns the consumer group client for an identifier, dialing the
// broker outside the lock on first use. A racing dial keeps the client
// registered first and closes the loser.
func (f *Fanout) group(identifier string) (sarama.ConsumerGroup, error) {
	f.mu.Lock()
	group, ok := f.groups[identifier]
	f.mu.Unlock()
	if ok {
		return group, nil
	}

	created, err := f.newGroup(identifier)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", identifier, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.groups[identifier]; ok {
		_ = created.Close()
		return existing, nil
	}
	f.groups[identifier] = created
	return created, nil
}

// detach removes one subscriber. On the 1 -> 0 transition the pump is taken
// out of the map (so the next Subscribe starts a fresh one on the same
// group client) and cancelled.
func (f *Fanout) detach(p *pump, id uint64) {
	f.mu.Lock()
	p.mu.Lock()
	ch, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
		close(ch)
	}
	last := ok && len(p.subs) == 0
	cancel := p.cancel
	p.mu.Unlock()
	if last && f.pumps[p.identifier] == p {
		delete(f.pumps, p.identifier)
	}
	f.mu.Unlock()

	if last && cancel != nil {
		cancel()
	}
}

// Subscription is a non-owning receive endpoint on a fan-out pump.
type Subscription struct {
	id   uint64
	pump *pump
	ch   chan Message
	once sync.Once
}

// C returns the receive channel. It is closed when the subscription is
// closed.
func (s *Subscription) C() <-chan Message { return s.ch }

// Close detaches the subscription. The pump stops once the last
// subscription of its identifier closes.
func (s *Subscription) Close() {
	s.once.Do(func() { s.pump.f.detach(s.pump, s.id) })
}

// pump is the single task that drains one consumer group and broadcasts to
// the subscribers of its identifier.
type pump struct {
	f          *Fanout
	topic      string
	identifier string

	// mu guards subs, nextID, and cancel. Sends into subscriber channels
	// happen under mu but are always non-blocking, so the hold time
	// stays short.
	mu     sync.Mutex
	subs   map[uint64]chan Message
	nextID uint64
	cancel context.CancelFunc
}

func newPump(f *Fanout, topic, identifier string) *pump {
	return &pump{
		f:          f,
		topic:      topic,
		identifier: identifier,
		subs:       make(map[uint64]chan Message),
	}
}

// add registers a new subscriber and reports whether it was the first
// (0 -> 1 starts the pump). Caller holds f.mu.
func (p *pump) add() (*Subscription, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	ch := make(chan Message, subscriberBuffer)
	p.subs[p.nextID] = ch
	return &Subscription{id: p.nextID, pump: p, ch: ch}, len(p.subs) == 1
}

func (p *pump) subscriberIDs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]uint64, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	return ids
}

// publish hands a message to every current subscriber. A full subscriber
// buffer is waited out in short sleeps (bounded backpressure); a subscriber
// that detaches mid-publish is skipped. Returns errNoSubscribers when there
// was nobody to deliver to.
func (p *pump) publish(ctx context.Context, m Message) error {
	ids := p.subscriberIDs()
	if len(ids) == 0 {
		return errNoSubscribers
	}

	for _, id := range ids {
		for {
			p.mu.Lock()
			ch, ok := p.subs[id]
			sent := false
			if ok {
				select {
				case ch <- m:
					sent = true
				default:
				}
			}
			p.mu.Unlock()

			if !ok || sent {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(publishRetryDelay):
			}
		}
	}
	return nil
}

// run drives consumer group sessions until the pump is cancelled. Session
// errors (rebalances, broker hiccups) are logged and retried.
func (p *pump) run(ctx context.Context, group sarama.ConsumerGroup) {
	handler := &pumpHandler{pump: p}
	for ctx.Err() == nil {
		err := group.Consume(ctx, []string{p.topic}, handler)
		switch {
		case err == nil || errors.Is(err, context.Canceled):
		case errors.Is(err, errNoSubscribers):
			slog.Info("fanout pump stopped, no subscribers left", "identifier", p.identifier)
			return
		default:
			slog.Error("consumer group session failed", "identifier", p.identifier, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(consumeRetryDelay):
			}
		}
	}
}

// pumpHandler adapts the pump to sarama's consumer group callbacks.
type pumpHandler struct {
	pump *pump
}

func (h *pumpHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *pumpHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim broadcasts each record and marks its offset only when the
// broadcast reached at least one subscriber. Marked offsets are flushed in
// the background by the auto-committer.
func (h *pumpHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			m := Message{
				Topic:   msg.Topic,
				Key:     string(msg.Key),
				Payload: msg.Value,
				Offset:  msg.Offset,
			}
			if !msg.Timestamp.IsZero() {
				m.Timestamp = msg.Timestamp.UnixMilli()
			}
			if err := h.pump.publish(sess.Context(), m); err != nil {
				// Not committed; redelivered to the next subscription.
				return err
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
