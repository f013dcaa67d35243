// Package resilience guards calls to the hosted model provider and the document
// store: a circuit breaker, bounded exponential-backoff retry and a timeout
// wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen means the upstream is being skipped after repeated failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is where a breaker sits between passing calls through and
// short-circuiting them.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

// String is the label exported on the breaker state gauge.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CircuitBreakerConfig tunes one upstream's breaker. Zero values take the
// defaults used for the OpenAI and Drive clients.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failed calls in a row that opens the
	// breaker. Defaults to 5.
	FailureThreshold int
	// ResetTimeout is how long an open breaker rejects calls before letting
	// trial calls through. Defaults to 30s.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests caps the trial calls admitted while half-open.
	// Defaults to 1.
	HalfOpenMaxRequests int
	// OnStateChange observes every transition. It runs under the breaker's
	// lock and must return quickly.
	OnStateChange func(name string, to State)
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	return c
}

// CircuitBreaker stops calling an upstream (an OpenAI endpoint or the Drive
// API) once it keeps failing, so a question or refresh fails fast instead of
// waiting out every timeout and retry.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	failedAt time.Time
	trials   int
}

// NewCircuitBreaker returns a closed breaker for the upstream called name.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "circuit-breaker", "upstream", name),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute calls fn unless the breaker is open and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// GetState reports the breaker's current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.failedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s unavailable, next attempt in %v", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.moveTo(StateHalfOpen)
		cb.trials = 1
		cb.logger.Info("upstream cool-down elapsed, sending trial call", "cool_down", cb.cfg.ResetTimeout)
	case StateHalfOpen:
		if cb.trials >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s trial call already in flight", ErrCircuitOpen, cb.name)
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.moveTo(StateClosed)
			cb.trials = 0
			cb.logger.Info("upstream recovered")
		}
		cb.failures = 0
		return
	}

	cb.failures++
	cb.failedAt = cb.now()
	switch {
	case cb.state == StateHalfOpen:
		cb.moveTo(StateOpen)
		cb.logger.Warn("trial call failed, upstream still unavailable", "error", err)
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.moveTo(StateOpen)
		cb.logger.Warn("upstream failing, short-circuiting calls",
			"failures", cb.failures,
			"cool_down", cb.cfg.ResetTimeout,
			"error", err,
		)
	}
}

func (cb *CircuitBreaker) moveTo(to State) {
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
