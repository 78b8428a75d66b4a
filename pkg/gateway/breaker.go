package gateway

import (
	"log"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker is a three-state circuit breaker guarding calls to the gateway.
// One breaker per external dependency, held by the Client and shared across
// requests; all state changes happen under the mutex.
type Breaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool

	now func() time.Time // overridable in tests
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. In the open state calls fail fast
// until the cooldown elapses, after which exactly one trial call is let
// through (half-open) to decide whether to close or re-open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			b.probing = true
			log.Printf("[Gateway] breaker half-open, allowing trial call")
			return true
		}
		return false
	case breakerHalfOpen:
		if b.probing {
			return false // one probe in flight already
		}
		b.probing = true
		return true
	}
	return false
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != breakerClosed {
		log.Printf("[Gateway] breaker closed after successful call")
	}
	b.state = breakerClosed
	b.failures = 0
	b.probing = false
}

// Abandon releases a claimed call slot without recording an outcome, for
// calls that ended because the caller went away rather than a gateway fault.
// A caller-aborted request must not count toward the failure threshold.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.probing = false
	}
}

// Failure records a failed call; after the threshold of consecutive failures
// the breaker opens, and a failed half-open probe re-opens it immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = breakerOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probing = false
	log.Printf("[Gateway] breaker open for %s", b.cooldown)
}
