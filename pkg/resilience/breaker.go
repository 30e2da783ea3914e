package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling through while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of a breaker.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold int
	// OpenTimeout is how long the circuit stays open before probing
	OpenTimeout time.Duration
	// HalfOpenProbes calls are let through while half-open; all must succeed to close
	HalfOpenProbes int
}

// DefaultBreakerConfig suits a broadcast transport: trip fast, recover within
// a couple of fallback intervals.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      5 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Breaker stops calling a failing dependency for a while, so callers fail
// fast instead of piling up on timeouts.
type Breaker struct {
	name   string
	config BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	probes    int
	successes int
	openedAt  time.Time

	onChange func(name string, from, to State)
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = 1
	}
	return &Breaker{name: name, config: config}
}

// OnStateChange registers a callback fired on every transition. The callback
// runs with the breaker lock held and must not call back into it.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, accounting for an elapsed open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

// refresh moves open -> half-open once the timeout has passed (lock held).
func (b *Breaker) refresh() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.config.OpenTimeout {
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()

	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probes >= b.config.HalfOpenProbes {
			return ErrCircuitOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.config.FailureThreshold {
			b.transition(StateOpen)
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenProbes {
			b.transition(StateClosed)
		}
	}
}

// transition resets counters for the new state (lock held).
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.probes = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = time.Now()
	}
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
