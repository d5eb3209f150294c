package events

import (
	"bytes"
	"encoding/json"
	"time"
)

// Type identifies the kind of a domain event
type Type string

// Product event types
const (
	ProductCreated            Type = "V1_PRODUCT_CREATED"
	ProductUpdated            Type = "V1_PRODUCT_UPDATED"
	ProductDeleted            Type = "V1_PRODUCT_DELETED"
	ProductPriceChanged       Type = "V1_PRODUCT_PRICE_CHANGED"
	ProductCategoryChanged    Type = "V1_PRODUCT_CATEGORY_CHANGED"
	ProductInventoryLow       Type = "V1_PRODUCT_INVENTORY_LOW"
	ProductInventoryRestocked Type = "V1_PRODUCT_INVENTORY_RESTOCKED"
)

// String returns the wire name of the event type
func (t Type) String() string {
	return string(t)
}

// DomainEvent is a semantically meaningful change to a catalog product.
type DomainEvent struct {
	EventID    string    `json:"eventId"`
	EventType  Type      `json:"eventType"`
	EntityID   string    `json:"entityId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    Payload   `json:"payload"`
}

// Entry is one named value of a payload
type Entry struct {
	Key   string
	Value interface{}
}

// Payload is an ordered mapping of named fields. It encodes to a JSON object
// with keys in insertion order.
type Payload []Entry

// Get returns the value stored under key
func (p Payload) Get(key string) (interface{}, bool) {
	for _, e := range p {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the payload keys in order
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, e := range p {
		keys = append(keys, e.Key)
	}
	return keys
}

// MarshalJSON implements json.Marshaler
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
