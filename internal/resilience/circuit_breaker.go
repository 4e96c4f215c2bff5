package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed means requests flow normally.
	StateClosed State = iota
	// StateHalfOpen means a limited number of trial requests are allowed.
	StateHalfOpen
	// StateOpen means requests are rejected without being attempted.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.NewStd("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open trial slots are taken.
	ErrTooManyRequests = errors.NewStd("circuit breaker is half-open, too many requests")
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxRequests is how many trial requests run concurrently when half-open.
	HalfOpenMaxRequests int
}

// DefaultBreakerConfig opens after 5 failures and retries after 60s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         5,
		Timeout:             60 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Validate checks the configuration.
func (c BreakerConfig) Validate() error {
	if c.MaxFailures < 1 {
		return fmt.Errorf("max_failures must be at least 1, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.HalfOpenMaxRequests < 1 {
		return fmt.Errorf("half_open_max_requests must be at least 1, got %d", c.HalfOpenMaxRequests)
	}
	return nil
}

// StateObserver is notified of every state transition, e.g. to update a gauge.
type StateObserver func(name string, from, to State)

// CircuitBreaker tracks consecutive failures of a dependency and stops
// calling it for a while once the threshold is reached.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu               sync.Mutex
	state            State
	failures         int
	lastStateChange  time.Time
	halfOpenRequests int
	observer         StateObserver
}

// NewCircuitBreaker creates a closed breaker. An invalid config is
// replaced by DefaultBreakerConfig.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if err := config.Validate(); err != nil {
		GetLogger().Warn("invalid circuit breaker config, using defaults",
			logger.String("breaker", name),
			logger.Error(err))
		config = DefaultBreakerConfig()
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// SetObserver installs fn; it is called with the breaker lock held and must not call back into the breaker.
func (cb *CircuitBreaker) SetObserver(fn StateObserver) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.observer = fn
}

// Call runs fn if the breaker allows it and records the outcome.
// Cancellation of ctx is not counted as a failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return fmt.Errorf("%s: %w", cb.name, err)
	}
	err := fn(ctx)
	cb.afterCall(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.halfOpenRequests = 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenRequests = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.HalfOpenMaxRequests {
			return ErrTooManyRequests
		}
		cb.halfOpenRequests++
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		if cb.state == StateHalfOpen && cb.halfOpenRequests > 0 {
			cb.halfOpenRequests--
		}
		return
	}

	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateOpen:
	}
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	now := time.Now()
	inPrevious := now.Sub(cb.lastStateChange)
	cb.state = next
	cb.lastStateChange = now
	if next != StateHalfOpen {
		cb.halfOpenRequests = 0
	}

	GetLogger().Info("circuit breaker state transition",
		logger.String("breaker", cb.name),
		logger.String("old_state", prev.String()),
		logger.String("new_state", next.String()),
		logger.Int("consecutive_failures", cb.failures),
		logger.Duration("time_in_previous_state", inPrevious))

	if cb.observer != nil {
		cb.observer(cb.name, prev, next)
	}
}
