package publisher

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"example.com/backstage/services/catalog/internal/breaker"
	"example.com/backstage/services/catalog/internal/events"
	"example.com/backstage/services/catalog/internal/metrics"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("service bus unavailable")

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Send(ctx context.Context, topic string, payload []byte, attributes map[string]string) (string, error) {
	args := m.Called(ctx, topic, payload, attributes)
	return args.String(0), args.Error(1)
}

func (m *MockBus) Close() error {
	return nil
}

// recordingSleeper records requested waits without sleeping
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func testSettings() Settings {
	return Settings{
		Topic:             "product-events",
		MaxAttempts:       3,
		BackoffBase:       100 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        10 * time.Second,
		SendTimeout:       time.Second,
	}
}

func testEnvelope() events.EventEnvelope {
	return events.NewEnvelopeBuilder().Envelope(events.DomainEvent{
		EventID:    "evt-1",
		EventType:  events.ProductPriceChanged,
		EntityID:   "prod-1",
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Payload:    events.Payload{{Key: "name", Value: "Espresso Beans"}},
	})
}

func TestPublishDeliversFirstTime(t *testing.T) {
	bus := new(MockBus)
	env := testEnvelope()
	body, err := env.Marshal()
	require.NoError(t, err)

	bus.On("Send", mock.Anything, "product-events", body, env.Attributes).Return("msg-1", nil).Once()

	sleeper := &recordingSleeper{}
	m := metrics.NewMetrics()
	p := New(bus, testSettings(), WithSleeper(sleeper.sleep), WithMetrics(m))

	result := p.Publish(context.Background(), env)

	require.True(t, result.Delivered())
	assert.Equal(t, StateDelivered, result.State)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, int64(1), m.Counter(metrics.PublishDelivered))
	bus.AssertExpectations(t)
}

func TestPublishRecoversOnThirdAttempt(t *testing.T) {
	bus := new(MockBus)
	bus.On("Send", mock.Anything, "product-events", mock.Anything, mock.Anything).Return("", errDown).Twice()
	bus.On("Send", mock.Anything, "product-events", mock.Anything, mock.Anything).Return("msg-3", nil).Once()

	sleeper := &recordingSleeper{}
	m := metrics.NewMetrics()
	p := New(bus, testSettings(), WithSleeper(sleeper.sleep), WithMetrics(m))

	result := p.Publish(context.Background(), testEnvelope())

	require.True(t, result.Delivered())
	assert.Equal(t, "msg-3", result.MessageID)
	assert.Equal(t, 3, result.Attempts)
	bus.AssertNumberOfCalls(t, "Send", 3)
	// base * 2^attempt
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, sleeper.waits)
	assert.Equal(t, int64(2), m.Counter(metrics.PublishRetries))
	assert.Equal(t, int64(0), m.Counter(metrics.PublishExhausted))
}

func TestPublishExhaustsRetries(t *testing.T) {
	bus := new(MockBus)
	bus.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errDown)

	sleeper := &recordingSleeper{}
	m := metrics.NewMetrics()
	p := New(bus, testSettings(), WithSleeper(sleeper.sleep), WithMetrics(m))

	result := p.Publish(context.Background(), testEnvelope())

	require.False(t, result.Delivered())
	assert.Equal(t, StateExhausted, result.State)
	assert.ErrorIs(t, result.Err, errDown)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, sleeper.waits, 2)
	bus.AssertNumberOfCalls(t, "Send", 3)
	assert.Equal(t, int64(1), m.Counter(metrics.PublishExhausted))
	assert.False(t, m.GetHealthChecks()[metrics.HealthMessageBus])

	// nothing is retried later
	time.Sleep(20 * time.Millisecond)
	bus.AssertNumberOfCalls(t, "Send", 3)
}

func TestPublishSingleAttemptDoesNotSleep(t *testing.T) {
	bus := new(MockBus)
	bus.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errDown)

	settings := testSettings()
	settings.MaxAttempts = 1
	sleeper := &recordingSleeper{}
	p := New(bus, settings, WithSleeper(sleeper.sleep))

	result := p.Publish(context.Background(), testEnvelope())

	assert.False(t, result.Delivered())
	assert.Empty(t, sleeper.waits)
	bus.AssertNumberOfCalls(t, "Send", 1)
}

func TestPublishSendTimeoutCountsAsFailedAttempt(t *testing.T) {
	bus := new(MockBus)
	bus.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	settings := testSettings()
	settings.SendTimeout = 10 * time.Millisecond
	sleeper := &recordingSleeper{}
	p := New(bus, settings, WithSleeper(sleeper.sleep))

	result := p.Publish(context.Background(), testEnvelope())

	assert.False(t, result.Delivered())
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Equal(t, 3, result.Attempts)
}

func TestPublishStopsWhenWaitIsInterrupted(t *testing.T) {
	bus := new(MockBus)
	bus.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errDown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(bus, testSettings())

	result := p.Publish(ctx, testEnvelope())

	assert.Equal(t, StateExhausted, result.State)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 1, result.Attempts)
}

func TestPublishOpenBreakerRejectsWithoutSending(t *testing.T) {
	bus := new(MockBus)
	bus.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errDown)

	cb := breaker.New(breaker.Settings{
		Name:                 "bus",
		FailureRateThreshold: 50,
		WindowSize:           1,
		MinimumCalls:         1,
		OpenTimeout:          time.Hour,
		HalfOpenTrials:       1,
	})
	sleeper := &recordingSleeper{}
	p := New(bus, testSettings(), WithSleeper(sleeper.sleep), WithBreaker(cb))

	result := p.Publish(context.Background(), testEnvelope())

	assert.False(t, result.Delivered())
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.Err, breaker.ErrOpen)
	assert.Len(t, sleeper.waits, 2)
	bus.AssertNumberOfCalls(t, "Send", 1)
}

func TestBackoff(t *testing.T) {
	p := New(new(MockBus), Settings{
		BackoffBase:       time.Second,
		BackoffMultiplier: 2,
		MaxBackoff:        5 * time.Second,
	})

	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(3))

	linear := New(new(MockBus), Settings{BackoffBase: time.Second, BackoffMultiplier: 1})
	assert.Equal(t, time.Second, linear.Backoff(4))
}

func TestBackoffWithoutCapSaturates(t *testing.T) {
	p := New(new(MockBus), Settings{
		BackoffBase:       time.Second,
		BackoffMultiplier: 2,
	})

	assert.Equal(t, 1<<33*time.Second, p.Backoff(33))
	for _, attempt := range []int{35, 100, 2000} {
		d := p.Backoff(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.Equal(t, time.Duration(math.MaxInt64), d, "attempt %d", attempt)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "attempting", StateAttempting.String())
	assert.Equal(t, "delivered", StateDelivered.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
}
