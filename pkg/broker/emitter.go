package broker

import (
	"fmt"

	"github.com/IBM/sarama"
)

// Emitter publishes domain events to the message log. The message key is
// the aggregate id, which keeps per-aggregate ordering within a topic.
type Emitter struct {
	producer sarama.SyncProducer
}

// NewEmitter connects a synchronous producer that waits for full ISR acks.
func NewEmitter(brokers []string) (*Emitter, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return &Emitter{producer: producer}, nil
}

// Emit publishes one event and blocks until the broker acknowledges it.
func (e *Emitter) Emit(topic, key string, payload []byte) error {
	_, _, err := e.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("emit to %s: %w", topic, err)
	}
	return nil
}

// Close releases the producer.
func (e *Emitter) Close() error {
	return e.producer.Close()
}
