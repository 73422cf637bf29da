package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"accredo/internal/platform/kafka/producer"
)

// KafkaStore forwards audit events to a Kafka topic, keyed by session so all
// events for one accreditation land on the same partition in order.
type KafkaStore struct {
	producer *producer.Producer
	topic    string
}

// NewKafkaStore constructs a Kafka-backed audit sink.
func NewKafkaStore(p *producer.Producer, topic string) *KafkaStore {
	return &KafkaStore{producer: p, topic: topic}
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.Publish(ctx, producer.Message{
		Topic: s.topic,
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: map[string]string{
			"action": event.Action,
		},
	})
}
