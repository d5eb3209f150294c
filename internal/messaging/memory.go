package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is a message accepted by a MemoryBus
type Message struct {
	ID         string
	Topic      string
	Payload    []byte
	Attributes map[string]string
	SentAt     time.Time
}

// MemoryBus is an in-process Bus used in development and tests. A failure
// function can be installed to simulate an unhealthy broker.
type MemoryBus struct {
	mu       sync.Mutex
	messages []Message
	calls    int
	failFn   func(call int) error
}

// NewMemoryBus creates an empty in-memory bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// FailWith installs fn, called with the 1-based call number before every
// send. A non-nil result fails that send.
func (b *MemoryBus) FailWith(fn func(call int) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failFn = fn
}

// Send records the message unless the context is done or the failure
// function rejects the call.
func (b *MemoryBus) Send(ctx context.Context, topic string, payload []byte, attributes map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.failFn != nil {
		if err := b.failFn(b.calls); err != nil {
			return "", err
		}
	}

	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	body := make([]byte, len(payload))
	copy(body, payload)

	msg := Message{
		ID:         uuid.NewString(),
		Topic:      topic,
		Payload:    body,
		Attributes: attrs,
		SentAt:     time.Now(),
	}
	b.messages = append(b.messages, msg)
	return msg.ID, nil
}

// Messages returns a copy of the accepted messages in send order
func (b *MemoryBus) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Calls returns the number of Send calls, failed ones included
func (b *MemoryBus) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Close implements Bus
func (b *MemoryBus) Close() error {
	return nil
}
