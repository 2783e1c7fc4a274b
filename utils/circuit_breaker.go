package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without running the operation while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	// StateClosed lets every call through.
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects calls until the cooldown has elapsed.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

// String returns the string representation of the circuit breaker state
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name string
	// MaxFailures consecutive counted failures open the circuit.
	MaxFailures int
	// Cooldown is how long the circuit stays open before a probe is allowed.
	Cooldown time.Duration
	// Counts selects which errors count as failures. Nil counts every error.
	Counts func(error) bool
	// Now overrides the clock.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns a default configuration
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        name,
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
	}
}

// CircuitBreaker fails fast after repeated failures of a dependency.
type CircuitBreaker struct {
	config   CircuitBreakerConfig
	mu       sync.Mutex
	state    CircuitBreakerState
	failures int
	openedAt time.Time
	probing  bool
	rejected uint64
	logger   *Logger
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if logger == nil {
		logger = GetLogger()
	}
	cfg := *config
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{config: cfg, logger: logger}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.config.Now().Sub(cb.openedAt) < cb.config.Cooldown {
			cb.rejected++
			return false
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return false
		}
		cb.probing = true
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && (cb.config.Counts == nil || cb.config.Counts(err))
	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	if !failed {
		cb.failures = 0
		if wasProbe {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	if wasProbe || cb.failures >= cb.config.MaxFailures {
		cb.openedAt = cb.config.Now()
		cb.setState(StateOpen)
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(next CircuitBreakerState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next

	fields := map[string]interface{}{
		"circuit_breaker": cb.config.Name,
		"old_state":       prev.String(),
		"new_state":       next.String(),
		"failures":        cb.failures,
	}
	if next == StateOpen {
		cb.logger.WithSource("circuit_breaker").Warn("Circuit breaker opened", fields)
		return
	}
	cb.logger.WithSource("circuit_breaker").Info("Circuit breaker state changed", fields)
}

// State returns the current state. An open circuit whose cooldown has
// elapsed still reports OPEN until the next call probes it.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Rejected returns how many calls were refused while open.
func (cb *CircuitBreaker) Rejected() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}
