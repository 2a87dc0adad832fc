package gateway

import (
	"sync"
	"time"
)

// BreakerState is the availability state of the gateway endpoint.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

const (
	defaultFailureThreshold  = 5
	defaultCooldown          = 30 * time.Second
	defaultHalfOpenSuccesses = 2
)

// Breaker tracks consecutive transport failures against the single gateway
// endpoint and fails calls fast while the endpoint is considered down.
// Only network-level failures trip it; gateway-level errors (4xx/5xx bodies)
// mean the endpoint is reachable and count as transport successes.
type Breaker struct {
	mu sync.Mutex

	state                BreakerState
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time

	failureThreshold  int
	cooldown          time.Duration
	halfOpenSuccesses int
	now               func() time.Time
}

// NewBreaker creates a Breaker with default thresholds.
func NewBreaker() *Breaker {
	return &Breaker{
		failureThreshold:  defaultFailureThreshold,
		cooldown:          defaultCooldown,
		halfOpenSuccesses: defaultHalfOpenSuccesses,
		now:               time.Now,
	}
}

// NewBreakerWithSettings creates a Breaker with custom thresholds.
func NewBreakerWithSettings(failureThreshold int, cooldown time.Duration, halfOpenSuccesses int) *Breaker {
	b := NewBreaker()
	b.failureThreshold = failureThreshold
	b.cooldown = cooldown
	b.halfOpenSuccesses = halfOpenSuccesses
	return b
}

// Allow reports whether a call may hit the wire. An open breaker transitions
// to half-open once the cooldown expires, letting probe traffic through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().After(b.openUntil) {
			b.state = BreakerHalfOpen
			b.consecutiveSuccesses = 0
			return true
		}
		return false
	default: // BreakerHalfOpen
		return true
	}
}

// RecordFailure notes a transport failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = BreakerOpen
			b.openUntil = b.now().Add(b.cooldown)
		}
	case BreakerHalfOpen:
		// A failed probe re-opens the breaker immediately.
		b.state = BreakerOpen
		b.openUntil = b.now().Add(b.cooldown)
		b.consecutiveFailures = 0
		b.consecutiveSuccesses = 0
	}
}

// RecordSuccess notes a transport success.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.consecutiveFailures = 0
	case BreakerHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.halfOpenSuccesses {
			b.state = BreakerClosed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	}
}

// State returns the current breaker state without side effects.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
