package publisher

import (
	"context"
	"math"
	"time"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/breaker"
	"example.com/backstage/services/catalog/internal/events"
	"example.com/backstage/services/catalog/internal/messaging"
	"example.com/backstage/services/catalog/internal/metrics"
	"example.com/backstage/services/catalog/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State of a publish attempt sequence
type State int

const (
	StatePending State = iota
	StateAttempting
	StateDelivered
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateDelivered:
		return "delivered"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of Publish: Delivered with the bus message
// id, or Exhausted with the last error.
type Result struct {
	State     State
	MessageID string
	Err       error
	Attempts  int
}

// Delivered reports whether the envelope reached the bus
func (r Result) Delivered() bool {
	return r.State == StateDelivered
}

// Settings controls delivery and retry behaviour
type Settings struct {
	Topic             string
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	SendTimeout       time.Duration
}

// SettingsFromConfig builds Settings from the service configuration
func SettingsFromConfig(msg config.MessagingConfig, cfg config.PublisherConfig) Settings {
	return Settings{
		Topic:             msg.Topic,
		MaxAttempts:       cfg.MaxAttempts,
		BackoffBase:       cfg.BackoffBase,
		BackoffMultiplier: cfg.BackoffMultiplier,
		MaxBackoff:        cfg.MaxBackoff,
		SendTimeout:       cfg.SendTimeout,
	}
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publisher delivers envelopes to the message bus, retrying failed sends with
// exponential backoff up to a fixed number of attempts.
type Publisher struct {
	bus      messaging.Bus
	settings Settings
	breaker  *breaker.Breaker
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
	sleep    Sleeper
}

// Option configures a Publisher
type Option func(*Publisher)

// WithBreaker guards every send with cb
func WithBreaker(cb *breaker.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithTracer sets the tracer used for publish transactions
func WithTracer(t tracing.Tracer) Option {
	return func(p *Publisher) {
		p.tracer = t
	}
}

// WithSleeper replaces the wait between attempts
func WithSleeper(s Sleeper) Option {
	return func(p *Publisher) {
		p.sleep = s
	}
}

// New creates a publisher for bus
func New(bus messaging.Bus, settings Settings, opts ...Option) *Publisher {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	if settings.BackoffMultiplier < 1 {
		settings.BackoffMultiplier = 1
	}
	if settings.SendTimeout <= 0 {
		settings.SendTimeout = 5 * time.Second
	}

	p := &Publisher{
		bus:      bus,
		settings: settings,
		metrics:  metrics.NewMetrics(),
		tracer:   tracing.Disabled(),
		sleep:    sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Backoff returns the wait after the given failed attempt:
// base * multiplier^attempt, capped at MaxBackoff when set. Without a cap the
// wait saturates at the largest representable duration.
func (p *Publisher) Backoff(attempt int) time.Duration {
	d := float64(p.settings.BackoffBase) * math.Pow(p.settings.BackoffMultiplier, float64(attempt))
	if p.settings.MaxBackoff > 0 && d > float64(p.settings.MaxBackoff) {
		return p.settings.MaxBackoff
	}
	if math.IsNaN(d) || d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Publish delivers env, blocking through retries. Failures never escape as
// errors; they are logged and reported in the Result.
func (p *Publisher) Publish(ctx context.Context, env events.EventEnvelope) Result {
	start := time.Now()
	logger := log.With().
		Str("event_type", env.EventType().String()).
		Str("entity_id", env.EntityID()).
		Str("event_id", env.EventID()).
		Logger()

	txn := p.tracer.StartTransaction("publish-event")
	defer p.tracer.EndTransaction(txn)
	p.tracer.AddAttribute(txn, "eventType", env.EventType().String())
	p.tracer.AddAttribute(txn, "entityId", env.EntityID())

	body, err := env.Marshal()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to serialize event envelope")
		p.tracer.RecordError(txn, err)
		p.metrics.IncrementCounter(metrics.PublishExhausted)
		return Result{State: StateExhausted, Err: err}
	}

	result := Result{State: StatePending}
	for attempt := 1; ; attempt++ {
		result.State = StateAttempting
		result.Attempts = attempt
		p.metrics.IncrementCounter(metrics.PublishAttempts)

		messageID, err := p.send(ctx, body, env.Attributes)
		if err == nil {
			p.metrics.RecordSuccess(metrics.PublishSend)
			p.metrics.IncrementCounter(metrics.PublishDelivered)
			p.metrics.RecordDuration(metrics.PublishLatency, time.Since(start))
			p.metrics.SetHealth(metrics.HealthMessageBus, true)

			logger.Info().
				Str("message_id", messageID).
				Int("attempts", attempt).
				Msg("Event delivered")

			result.State = StateDelivered
			result.MessageID = messageID
			return result
		}

		result.Err = err
		p.metrics.RecordError(metrics.PublishSend)

		if attempt >= p.settings.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Event delivery failed, retrying")
		p.metrics.IncrementCounter(metrics.PublishRetries)

		if err := p.sleep(ctx, delay); err != nil {
			result.Err = errors.Wrap(err, "retry wait interrupted")
			break
		}
	}

	result.State = StateExhausted
	p.metrics.IncrementCounter(metrics.PublishExhausted)
	p.metrics.SetHealth(metrics.HealthMessageBus, false)
	p.tracer.RecordError(txn, result.Err)

	logger.Error().
		Err(result.Err).
		Int("attempts", result.Attempts).
		Msg("Event delivery exhausted retries, event dropped")

	return result
}

func (p *Publisher) send(ctx context.Context, body []byte, attributes map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settings.SendTimeout)
	defer cancel()

	if p.breaker == nil {
		return p.bus.Send(ctx, p.settings.Topic, body, attributes)
	}

	var messageID string
	err := p.breaker.Execute(func() error {
		var err error
		messageID, err = p.bus.Send(ctx, p.settings.Topic, body, attributes)
		return err
	})
	return messageID, err
}
