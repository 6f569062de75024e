// Package resilience provides circuit breaker and retry patterns for calls to
// the search provider and the spirits store.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state; requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures; requests are rejected immediately.
	CircuitOpen
	// CircuitHalfOpen allows a single trial request to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open - service unavailable")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 5.
	FailureThreshold int

	// Timeout is the fail-fast window measured from the most recent failure.
	// Default: 60s.
	Timeout time.Duration

	// ResetTimeout is how long the circuit stays open before transitioning
	// to half-open. Default: 30s.
	ResetTimeout time.Duration

	// ShouldTrip optionally overrides the default check. If nil, every
	// non-nil error except context cancellation counts as a failure.
	ShouldTrip func(err error) bool

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern for a single service.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	lastFailureTime     time.Time
	openedAt            time.Time
	trialInFlight       bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn through the circuit breaker. Returns ErrCircuitOpen if the
// circuit is open. On success, resets the failure counter. On failure (if the
// error should trip the breaker), increments the failure counter.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := cb.allowRequest()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.recordResult(trial, err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	trial, err := cb.allowRequest()
	if err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(trial, err)
	return val, err
}

// State returns the current circuit state, moving an expired open circuit to
// half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()
	return cb.state
}

// Reset forces the circuit back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	if cb.state != CircuitClosed {
		cb.transition(CircuitClosed)
	}
}

// Counters returns the current failure count and state for observability.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.consecutiveFailures, cb.state
}

// LastFailure returns the time of the most recent counted failure.
func (cb *CircuitBreaker) LastFailure() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailureTime
}

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure *time.Time   `json:"last_failure,omitempty"`
}

// Snapshot returns the breaker's current state, failure count and last
// failure time.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()

	s := Snapshot{State: cb.state, Failures: cb.consecutiveFailures}
	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		s.LastFailure = &t
	}
	return s
}

// maybeHalfOpen requires cb.mu held.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state != CircuitOpen {
		return
	}
	now := cb.nowFunc()
	if now.Sub(cb.openedAt) >= cb.cfg.ResetTimeout || now.Sub(cb.lastFailureTime) >= cb.cfg.Timeout {
		cb.transition(CircuitHalfOpen)
	}
}

// allowRequest admits or rejects a call. trial is true when the admitted call
// is the half-open trial.
func (cb *CircuitBreaker) allowRequest() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()
	switch cb.state {
	case CircuitOpen:
		return false, ErrCircuitOpen
	case CircuitHalfOpen:
		if cb.trialInFlight {
			return false, ErrCircuitOpen
		}
		cb.trialInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) recordResult(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
	}

	// Cancellation says nothing about the dependency's health.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	shouldTrip := cb.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}

	if err == nil || !shouldTrip(err) {
		// Success.
		switch cb.state {
		case CircuitHalfOpen:
			if trial {
				cb.consecutiveFailures = 0
				cb.transition(CircuitClosed)
			}
		case CircuitClosed:
			cb.consecutiveFailures = 0
		}
		return
	}

	// Failure.
	cb.consecutiveFailures++
	cb.lastFailureTime = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case CircuitHalfOpen:
		// A failed trial reopens the circuit.
		if trial {
			cb.open()
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.lastFailureTime
	cb.transition(CircuitOpen)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// ServiceBreakers manages circuit breakers for multiple services.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewServiceBreakers creates a registry of per-service circuit breakers.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the circuit breaker for the named service, creating one if needed.
func (sb *ServiceBreakers) Get(service string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[service]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	// Double-check after acquiring write lock.
	if cb, ok = sb.breakers[service]; ok {
		return cb
	}
	cb = NewCircuitBreaker(sb.cfg)
	sb.breakers[service] = cb
	return cb
}

// GetWith is like Get but applies mutate to a copy of the registry config
// before creating a missing breaker.
func (sb *ServiceBreakers) GetWith(service string, mutate func(*CircuitBreakerConfig)) *CircuitBreaker {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if cb, ok := sb.breakers[service]; ok {
		return cb
	}
	cfg := sb.cfg
	if mutate != nil {
		mutate(&cfg)
	}
	cb := NewCircuitBreaker(cfg)
	sb.breakers[service] = cb
	return cb
}

// States returns a snapshot of all circuit breaker states.
func (sb *ServiceBreakers) States() map[string]CircuitState {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	states := make(map[string]CircuitState, len(sb.breakers))
	for name, cb := range sb.breakers {
		states[name] = cb.State()
	}
	return states
}

// Snapshots returns a detailed snapshot of every breaker.
func (sb *ServiceBreakers) Snapshots() map[string]Snapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	out := make(map[string]Snapshot, len(sb.breakers))
	for name, cb := range sb.breakers {
		out[name] = cb.Snapshot()
	}
	return out
}
