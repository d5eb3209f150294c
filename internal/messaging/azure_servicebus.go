package messaging

import (
	"context"
	"sync"
	"time"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/events"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

// AzureServiceBus sends messages to Azure Service Bus topics
type AzureServiceBus struct {
	client *azservicebus.Client
	source string

	mu      sync.Mutex
	senders map[string]*azservicebus.Sender
}

// NewAzureServiceBus creates a new Azure Service Bus client
func NewAzureServiceBus(cfg config.MessagingConfig) (*AzureServiceBus, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	return &AzureServiceBus{
		client:  client,
		source:  cfg.Source,
		senders: make(map[string]*azservicebus.Sender),
	}, nil
}

// Send publishes payload to topic. The event id attribute becomes the
// message id so duplicate detection on the entity can drop redeliveries.
func (b *AzureServiceBus) Send(ctx context.Context, topic string, payload []byte, attributes map[string]string) (string, error) {
	sender, err := b.sender(topic)
	if err != nil {
		return "", err
	}

	messageID := attributes[events.AttrEventID]
	if messageID == "" {
		messageID = uuid.NewString()
	}

	properties := make(map[string]interface{}, len(attributes)+2)
	for k, v := range attributes {
		properties[k] = v
	}
	properties["source"] = b.source
	properties["time"] = time.Now().UTC().Format(time.RFC3339)

	contentType := contentTypeJSON
	msg := &azservicebus.Message{
		MessageID:             &messageID,
		ContentType:           &contentType,
		Body:                  payload,
		ApplicationProperties: properties,
	}
	if subject, ok := attributes[events.AttrEventType]; ok {
		msg.Subject = &subject
	}

	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		return "", errors.Wrapf(err, "failed to send message to %s", topic)
	}

	return messageID, nil
}

func (b *AzureServiceBus) sender(topic string) (*azservicebus.Sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.senders[topic]; ok {
		return s, nil
	}

	s, err := b.client.NewSender(topic, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Service Bus sender for %s", topic)
	}
	b.senders[topic] = s
	return s, nil
}

// Close closes all senders and the client
func (b *AzureServiceBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for topic, s := range b.senders {
		if err := s.Close(ctx); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Failed to close Service Bus sender")
		}
		delete(b.senders, topic)
	}

	if b.client != nil {
		return b.client.Close(ctx)
	}
	return nil
}
