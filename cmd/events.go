package cmd

import (
	"time"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/breaker"
	"example.com/backstage/services/catalog/internal/dispatch"
	"example.com/backstage/services/catalog/internal/events"
	"example.com/backstage/services/catalog/internal/messaging"
	"example.com/backstage/services/catalog/internal/metrics"
	"example.com/backstage/services/catalog/internal/pipeline"
	"example.com/backstage/services/catalog/internal/publisher"
	"example.com/backstage/services/catalog/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// eventStack is the wired event pipeline
type eventStack struct {
	bus        messaging.Bus
	breaker    *breaker.Breaker
	deriver    *events.Deriver
	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Pipeline
}

func newEventStack(cfg config.Config, m *metrics.Metrics, tracer tracing.Tracer) (*eventStack, error) {
	bus, err := messaging.NewBus(cfg.Messaging)
	if err != nil {
		return nil, err
	}

	opts := []publisher.Option{
		publisher.WithMetrics(m),
		publisher.WithTracer(tracer),
	}

	var cb *breaker.Breaker
	if cfg.Breaker.Enabled {
		cb = breaker.New(breaker.Settings{
			Name:                 "message-bus",
			FailureRateThreshold: cfg.Breaker.FailureRateThreshold,
			WindowSize:           cfg.Breaker.WindowSize,
			MinimumCalls:         cfg.Breaker.MinimumCalls,
			OpenTimeout:          cfg.Breaker.OpenTimeout,
			HalfOpenTrials:       cfg.Breaker.HalfOpenTrials,
			OnStateChange: func(name string, from, to breaker.State) {
				if to == breaker.StateOpen {
					m.IncrementCounter(metrics.BreakerOpened)
				}
			},
		})
		opts = append(opts, publisher.WithBreaker(cb))
	}

	pub := publisher.New(bus, publisher.SettingsFromConfig(cfg.Messaging, cfg.Publisher), opts...)
	dispatcher := dispatch.NewDispatcher(pub, dispatch.SettingsFromConfig(cfg.Dispatch), m)
	deriver := events.NewDeriver(cfg.Pipeline.LowInventoryThreshold)

	return &eventStack{
		bus:        bus,
		breaker:    cb,
		deriver:    deriver,
		dispatcher: dispatcher,
		pipeline:   pipeline.New(deriver, events.NewEnvelopeBuilder(), dispatcher, m),
	}, nil
}

// logStats writes a summary of delivery counters
func (s *eventStack) logStats(m *metrics.Metrics) {
	depth := s.dispatcher.QueueDepth()
	m.SetGauge(metrics.DispatchQueueSize, int64(depth))

	event := log.Info().
		Int("queue_depth", depth).
		Int64("derived", m.Counter(metrics.EventsDerived)).
		Int64("delivered", m.Counter(metrics.PublishDelivered)).
		Int64("exhausted", m.Counter(metrics.PublishExhausted)).
		Int64("retries", m.Counter(metrics.PublishRetries)).
		Int64("dropped", m.Counter(metrics.DispatchDropped)).
		Int("low_inventory_threshold", s.deriver.Threshold())
	if s.breaker != nil {
		event = event.
			Str("breaker", s.breaker.Name()).
			Str("breaker_state", s.breaker.State().String())
	}
	event.Msg("Event pipeline stats")
}

func newStatsScheduler(stack *eventStack, m *metrics.Metrics, interval time.Duration) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			stack.logStats(m)
		}),
	)
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}
