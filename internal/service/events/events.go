// Package events publishes domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys for published events.
const (
	TypeAnalysisCompleted   = "analysis.completed"
	TypeSubscriptionChanged = "subscription.changed"
)

// Event is the envelope written to the exchange. Type doubles as the routing key.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	UserID     uuid.UUID `json:"userId"`
	Data       any       `json:"data,omitempty"`
}

// AnalysisCompleted is the payload of an analysis.completed event.
type AnalysisCompleted struct {
	ChannelID   string `json:"channelId"`
	Fingerprint string `json:"fingerprint"`
	MonthlyUsed int    `json:"monthlyUsed"`
}

// SubscriptionChanged is the payload of a subscription.changed event.
type SubscriptionChanged struct {
	Status        string `json:"status"`
	StripeEventID string `json:"stripeEventId"`
}

// New builds an event with a fresh id.
func New(eventType string, userID uuid.UUID, data any) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		Data:       data,
	}
}

// Publisher sends events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopPublisher drops every event. It is used when RabbitMQ is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
