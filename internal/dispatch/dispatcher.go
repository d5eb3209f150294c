package dispatch

import (
	"context"
	"sync"
	"time"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/events"
	"example.com/backstage/services/catalog/internal/metrics"
	"example.com/backstage/services/catalog/internal/publisher"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueFull is returned when an envelope could not be queued within the
	// enqueue timeout and was dropped.
	ErrQueueFull = errors.New("dispatch queue is full")
	// ErrStopped is returned when submitting to a dispatcher that is not running
	ErrStopped = errors.New("dispatcher is stopped")
)

// Publisher delivers a single envelope
type Publisher interface {
	Publish(ctx context.Context, env events.EventEnvelope) publisher.Result
}

// Settings sizes the queue and worker pool
type Settings struct {
	QueueSize      int
	Workers        int
	EnqueueTimeout time.Duration
}

// SettingsFromConfig builds Settings from the service configuration
func SettingsFromConfig(cfg config.DispatchConfig) Settings {
	return Settings{
		QueueSize:      cfg.QueueSize,
		Workers:        cfg.Workers,
		EnqueueTimeout: cfg.EnqueueTimeout,
	}
}

// Dispatcher hands envelopes from request goroutines to a fixed pool of
// publishing workers through a bounded queue.
type Dispatcher struct {
	publisher Publisher
	settings  Settings
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	queue   chan events.EventEnvelope
	started bool
	stopped bool
	group   *errgroup.Group
}

// NewDispatcher creates a dispatcher. Call Start before submitting.
func NewDispatcher(p Publisher, settings Settings, m *metrics.Metrics) *Dispatcher {
	if settings.QueueSize < 1 {
		settings.QueueSize = 1
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	return &Dispatcher{
		publisher: p,
		settings:  settings,
		metrics:   m,
		queue:     make(chan events.EventEnvelope, settings.QueueSize),
	}
}

// Start launches the workers. Publishing runs on a context detached from ctx
// so in-flight retries are not cut short; use Stop to drain.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.stopped {
		return
	}
	d.started = true

	d.group = new(errgroup.Group)
	for i := 0; i < d.settings.Workers; i++ {
		worker := i
		d.group.Go(func() error {
			d.work(context.WithoutCancel(ctx), worker)
			return nil
		})
	}

	log.Info().
		Int("workers", d.settings.Workers).
		Int("queue_size", d.settings.QueueSize).
		Msg("Event dispatcher started")
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for env := range d.queue {
		d.metrics.SetGauge(metrics.DispatchQueueSize, int64(len(d.queue)))
		result := d.publisher.Publish(ctx, env)
		if !result.Delivered() {
			log.Debug().
				Int("worker", worker).
				Str("event_id", env.EventID()).
				Msg("Worker finished undelivered event")
		}
	}
}

// Submit queues env for publishing. It never blocks longer than the enqueue
// timeout; when the queue stays full the envelope is dropped.
func (d *Dispatcher) Submit(env events.EventEnvelope) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.started || d.stopped {
		d.drop(env, ErrStopped)
		return ErrStopped
	}

	select {
	case d.queue <- env:
		d.enqueued()
		return nil
	default:
	}

	if d.settings.EnqueueTimeout > 0 {
		timer := time.NewTimer(d.settings.EnqueueTimeout)
		defer timer.Stop()

		select {
		case d.queue <- env:
			d.enqueued()
			return nil
		case <-timer.C:
		}
	}

	d.drop(env, ErrQueueFull)
	return ErrQueueFull
}

func (d *Dispatcher) enqueued() {
	d.metrics.IncrementCounter(metrics.DispatchEnqueued)
	d.metrics.SetGauge(metrics.DispatchQueueSize, int64(len(d.queue)))
}

func (d *Dispatcher) drop(env events.EventEnvelope, reason error) {
	d.metrics.IncrementCounter(metrics.DispatchDropped)
	log.Error().
		Err(reason).
		Str("event_type", env.EventType().String()).
		Str("entity_id", env.EntityID()).
		Str("event_id", env.EventID()).
		Msg("Event dropped before publishing")
}

// QueueDepth returns the number of envelopes waiting for a worker
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Stop closes the queue and waits for the workers to publish what is left,
// or for ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	group := d.group
	d.mu.Unlock()

	if group == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Event dispatcher drained")
		return nil
	case <-ctx.Done():
		log.Warn().Int("pending", len(d.queue)).Msg("Event dispatcher stopped before draining")
		return errors.Wrap(ctx.Err(), "dispatcher drain")
	}
}
