package messaging

import (
	"context"

	"example.com/backstage/services/catalog/config"

	"github.com/pkg/errors"
)

// Bus delivers a payload with routing attributes to a topic and returns the
// id the bus assigned to the message.
type Bus interface {
	Send(ctx context.Context, topic string, payload []byte, attributes map[string]string) (string, error)
	Close() error
}

// NewBus creates the bus selected by cfg.Driver
func NewBus(cfg config.MessagingConfig) (Bus, error) {
	switch cfg.Driver {
	case "azure":
		bus, err := NewAzureServiceBus(cfg)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "memory":
		return NewMemoryBus(), nil
	default:
		return nil, errors.Errorf("unknown messaging driver %q", cfg.Driver)
	}
}
