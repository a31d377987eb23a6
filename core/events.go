package core

import (
	"context"
	"time"
)

// Domain event topics
const (
	TopicOrderCompleted    = "order.completed"
	TopicOrderFailed       = "order.failed"
	TopicEnrollmentCreated = "enrollment.created"
	TopicCertificateIssued = "certificate.issued"
)

type Event struct {
	Topic      string      `json:"topic"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewEvent(topic, key string, payload interface{}) Event {
	return Event{Topic: topic, Key: key, OccurredAt: time.Now().UTC(), Payload: payload}
}

// EventPublisher publishes domain events. Publishing is fire-and-forget:
// implementations log their failures instead of returning them.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event)
}
