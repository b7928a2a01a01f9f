package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"careconnect/internal/events"
)

// Notifier publishes realtime event envelopes to the notifications topic,
// where the chat server picks them up for websocket fan-out. It implements
// services.Notifier for the REST API process.
type Notifier struct {
	producer MessageProducer
	topic    string
}

// NewNotifier creates a Kafka-backed event notifier.
func NewNotifier(producer MessageProducer, topic string) *Notifier {
	return &Notifier{producer: producer, topic: topic}
}

// Notify wraps the event in a routed envelope and publishes it. Keyed by
// conversation id so events of one thread stay ordered within a partition.
func (n *Notifier) Notify(ctx context.Context, conversationID uint, targetUsers []uint, ev events.Event) error {
	envelope := events.Envelope{
		Event:          ev,
		ConversationID: conversationID,
		TargetUsers:    targetUsers,
		OccurredAt:     time.Now(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", ev.Type, err)
	}

	key := []byte(strconv.FormatUint(uint64(conversationID), 10))
	if err := n.producer.SendMessage(ctx, n.topic, key, payload); err != nil {
		return fmt.Errorf("failed to publish %s envelope: %w", ev.Type, err)
	}
	return nil
}
