package breaker

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrOpen is returned when a call is rejected without being attempted
var ErrOpen = errors.New("circuit breaker is open")

// State of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker
type Settings struct {
	Name string
	// FailureRateThreshold is the failure percentage (0-100) over the window
	// that opens the breaker.
	FailureRateThreshold float64
	// WindowSize is the number of most recent calls considered while closed.
	WindowSize int
	// MinimumCalls is the number of recorded calls required before the
	// failure rate is evaluated.
	MinimumCalls int
	// OpenTimeout is how long the breaker stays open before allowing trials.
	OpenTimeout time.Duration
	// HalfOpenTrials is the number of successful trial calls needed to close.
	HalfOpenTrials int
	// OnStateChange is called with the breaker lock held.
	OnStateChange func(name string, from, to State)
}

// Breaker is a count-based circuit breaker with the transitions
// Closed -> Open -> HalfOpen -> Closed.
type Breaker struct {
	mu       sync.Mutex
	settings Settings
	now      func() time.Time

	state      State
	generation uint64
	openedAt   time.Time

	window   []bool
	pos      int
	recorded int
	failures int

	trialsInFlight int
	trialSuccesses int
}

// New creates a closed breaker. Zero settings fall back to a window of 10
// calls, 50% failure rate, 30s open timeout and a single half-open trial.
func New(s Settings) *Breaker {
	if s.WindowSize <= 0 {
		s.WindowSize = 10
	}
	if s.MinimumCalls <= 0 || s.MinimumCalls > s.WindowSize {
		s.MinimumCalls = s.WindowSize
	}
	if s.FailureRateThreshold <= 0 || s.FailureRateThreshold > 100 {
		s.FailureRateThreshold = 50
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenTrials <= 0 {
		s.HalfOpenTrials = 1
	}

	return &Breaker{
		settings: s,
		now:      time.Now,
		window:   make([]bool, s.WindowSize),
	}
}

// Name returns the configured breaker name
func (b *Breaker) Name() string {
	return b.settings.Name
}

// State returns the current state, moving Open to HalfOpen once the open
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()
	return b.state
}

// Execute runs fn if the breaker admits the call and records its outcome.
// Rejected calls return ErrOpen and fn is not invoked.
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.allow()
	if err != nil {
		return err
	}

	err = fn()
	b.record(generation, err == nil)
	return err
}

func (b *Breaker) allow() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()

	switch b.state {
	case StateOpen:
		return 0, ErrOpen
	case StateHalfOpen:
		if b.trialsInFlight+b.trialSuccesses >= b.settings.HalfOpenTrials {
			return 0, ErrOpen
		}
		b.trialsInFlight++
	}

	return b.generation, nil
}

func (b *Breaker) record(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// outcome of a call admitted before the last transition
	if generation != b.generation {
		return
	}

	switch b.state {
	case StateClosed:
		b.push(success)
		if b.recorded >= b.settings.MinimumCalls && b.failureRate() >= b.settings.FailureRateThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.trialsInFlight--
		if !success {
			b.transition(StateOpen)
			return
		}
		b.trialSuccesses++
		if b.trialSuccesses >= b.settings.HalfOpenTrials {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) push(success bool) {
	if b.recorded == len(b.window) {
		if !b.window[b.pos] {
			b.failures--
		}
	} else {
		b.recorded++
	}

	b.window[b.pos] = success
	if !success {
		b.failures++
	}
	b.pos = (b.pos + 1) % len(b.window)
}

func (b *Breaker) failureRate() float64 {
	if b.recorded == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.recorded) * 100
}

func (b *Breaker) checkOpenTimeout() {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.settings.OpenTimeout)) {
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.generation++
	b.trialsInFlight = 0
	b.trialSuccesses = 0

	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.pos, b.recorded, b.failures = 0, 0, 0
		for i := range b.window {
			b.window[i] = false
		}
	}

	log.Warn().
		Str("breaker", b.settings.Name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
