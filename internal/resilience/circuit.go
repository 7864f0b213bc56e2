// Package resilience guards calls to the remote browser-agent service with
// retries and a circuit breaker, and maps the resulting errors onto
// submission failure reasons.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = eris.New("resilience: agent circuit is open")

// BreakerConfig controls when the breaker opens and how long it stays open.
type BreakerConfig struct {
	Name         string
	Threshold    int           // consecutive failures before opening, default 5
	Cooldown     time.Duration // open duration before a probe is allowed, default 30s
	ProbesToHeal int           // successful probes needed to close again, default 1

	// Counts decides which errors count as failures. Defaults to any
	// non-nil error.
	Counts func(err error) bool
}

// CircuitBreaker stops hammering the agent service once it is consistently
// failing so the rest of a batch degrades quickly into network_error results.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time

	now func() time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbesToHeal <= 0 {
		cfg.ProbesToHeal = 1
	}
	if cfg.Name == "" {
		cfg.Name = "agent"
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker is open.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cb == nil {
		return fn(ctx)
	}
	if !cb.allow() {
		return zero, ErrCircuitOpen
	}
	v, err := fn(ctx)
	cb.record(err)
	return v, err
}

// State reports the current state. An open breaker whose cooldown has passed
// reports half-open.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveTo(StateClosed)
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
		return false
	}
	cb.moveTo(StateHalfOpen)
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	counts := cb.cfg.Counts
	if counts == nil {
		counts = func(e error) bool { return e != nil }
	}

	if err == nil || !counts(err) {
		switch cb.state {
		case StateHalfOpen:
			cb.probes++
			if cb.probes >= cb.cfg.ProbesToHeal {
				cb.moveTo(StateClosed)
			}
		case StateClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.moveTo(StateOpen)
	}
}

func (cb *CircuitBreaker) moveTo(to BreakerState) {
	from := cb.state
	cb.state = to
	cb.probes = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}
	if from != to {
		zap.L().Info("circuit breaker state change",
			zap.String("breaker", cb.cfg.Name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
}
