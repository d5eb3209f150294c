package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Routing attribute keys set on every envelope
const (
	AttrEventType = "eventType"
	AttrEntityID  = "entityId"
	AttrEventID   = "eventId"
)

// EventEnvelope is a domain event plus the attributes the message bus uses
// for routing and filtering.
type EventEnvelope struct {
	Event      DomainEvent
	Attributes map[string]string
}

// EventType returns the type of the wrapped event
func (e EventEnvelope) EventType() Type {
	return e.Event.EventType
}

// EntityID returns the product id of the wrapped event
func (e EventEnvelope) EntityID() string {
	return e.Event.EntityID
}

// EventID returns the unique id of the wrapped event
func (e EventEnvelope) EventID() string {
	return e.Event.EventID
}

type wireEnvelope struct {
	EventID    string  `json:"eventId"`
	EventType  Type    `json:"eventType"`
	EntityID   string  `json:"entityId"`
	OccurredAt string  `json:"occurredAt"`
	Payload    Payload `json:"payload"`
}

// Marshal renders the message body sent to the bus
func (e EventEnvelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(wireEnvelope{
		EventID:    e.Event.EventID,
		EventType:  e.Event.EventType,
		EntityID:   e.Event.EntityID,
		OccurredAt: e.Event.OccurredAt.UTC().Format(time.RFC3339Nano),
		Payload:    e.Event.Payload,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s envelope", e.Event.EventType)
	}
	return data, nil
}

// EnvelopeBuilder wraps domain events for transport
type EnvelopeBuilder struct {
	newID func() string
}

// NewEnvelopeBuilder creates a builder that assigns random UUIDs to events
// that arrive without an id.
func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{newID: uuid.NewString}
}

// Envelope wraps event, generating its id when missing
func (b *EnvelopeBuilder) Envelope(event DomainEvent) EventEnvelope {
	if event.EventID == "" {
		event.EventID = b.newID()
	}

	return EventEnvelope{
		Event: event,
		Attributes: map[string]string{
			AttrEventType: event.EventType.String(),
			AttrEntityID:  event.EntityID,
			AttrEventID:   event.EventID,
		},
	}
}
