package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaEmitter forwards dispatcher events to a Kafka topic so external
// consumers can follow transfer progress without holding a channel
// connection.
type KafkaEmitter struct {
	writer *kafka.Writer
	log    zerolog.Logger
	mu     sync.Mutex
}

// NewKafkaEmitter creates an emitter writing to topic on brokerAddress.
func NewKafkaEmitter(brokerAddress, topic string, log zerolog.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokerAddress),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: log,
	}
}

// Attach subscribes the emitter to every event on the dispatcher. Emission
// failures are logged, never surfaced to the event source.
func (k *KafkaEmitter) Attach(d *Dispatcher) {
	d.SubscribeAll(func(evt Event) {
		if err := k.emit(evt); err != nil {
			k.log.Error().Err(err).Str("kind", string(evt.Kind)).Msg("failed to forward event to kafka")
		}
	})
}

func (k *KafkaEmitter) emit(evt Event) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(evt.Kind),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
