package pipeline

import (
	"example.com/backstage/services/catalog/internal/catalog"
	"example.com/backstage/services/catalog/internal/events"
	"example.com/backstage/services/catalog/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Submitter accepts envelopes for background publishing
type Submitter interface {
	Submit(env events.EventEnvelope) error
}

// Notifier is what the catalog service calls after a mutation has been saved
type Notifier interface {
	OnCreate(created catalog.Snapshot)
	OnUpdate(old, updated catalog.Snapshot)
	OnDelete(entityID string)
}

// Pipeline derives domain events from catalog mutations and hands their
// envelopes to the dispatcher. It never reports delivery problems back to
// the caller.
type Pipeline struct {
	deriver   *events.Deriver
	builder   *events.EnvelopeBuilder
	submitter Submitter
	metrics   *metrics.Metrics
}

// New creates a pipeline
func New(deriver *events.Deriver, builder *events.EnvelopeBuilder, submitter Submitter, m *metrics.Metrics) *Pipeline {
	if builder == nil {
		builder = events.NewEnvelopeBuilder()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Pipeline{
		deriver:   deriver,
		builder:   builder,
		submitter: submitter,
		metrics:   m,
	}
}

// OnCreate publishes the events for a created product
func (p *Pipeline) OnCreate(created catalog.Snapshot) {
	p.dispatch(p.deriver.OnCreate(created))
}

// OnUpdate publishes the events for an updated product
func (p *Pipeline) OnUpdate(old, updated catalog.Snapshot) {
	p.dispatch(p.deriver.OnUpdate(old, updated))
}

// OnDelete publishes the event for a deleted product
func (p *Pipeline) OnDelete(entityID string) {
	p.dispatch(p.deriver.OnDelete(entityID))
}

func (p *Pipeline) dispatch(derived []events.DomainEvent) {
	p.metrics.IncrementCounterBy(metrics.EventsDerived, int64(len(derived)))

	for _, event := range derived {
		env := p.builder.Envelope(event)
		if err := p.submitter.Submit(env); err != nil {
			// dispatcher already logged and counted the drop
			log.Debug().
				Err(err).
				Str("event_type", env.EventType().String()).
				Str("entity_id", env.EntityID()).
				Msg("Event not dispatched")
		}
	}
}
