package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		assert.True(t, b.Allow())
		b.Failure()
	}
	assert.False(t, b.Allow(), "breaker should fail fast after 5 consecutive failures")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(5, 30*time.Second)
	for i := 0; i < 4; i++ {
		b.Failure()
	}
	b.Success()
	for i := 0; i < 4; i++ {
		b.Failure()
	}
	assert.True(t, b.Allow(), "non-consecutive failures must not trip the breaker")
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	current := time.Unix(1000, 0)
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return current }

	b.Failure()
	b.Failure()
	assert.False(t, b.Allow())

	current = current.Add(31 * time.Second)
	assert.True(t, b.Allow(), "one trial call after cooldown")
	assert.False(t, b.Allow(), "only one probe while half-open")

	b.Success()
	assert.True(t, b.Allow(), "breaker closes after successful probe")
}

func TestBreakerAbandonDoesNotCountAsFailure(t *testing.T) {
	b := NewBreaker(2, 30*time.Second)
	b.Failure()
	b.Abandon()
	assert.True(t, b.Allow(), "an abandoned call must not add to the failure count")
	b.Failure()
	assert.False(t, b.Allow(), "two real failures still trip the breaker")
}

func TestBreakerAbandonedProbeFreesTheSlot(t *testing.T) {
	current := time.Unix(1000, 0)
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return current }

	b.Failure()
	b.Failure()
	current = current.Add(31 * time.Second)
	assert.True(t, b.Allow())
	b.Abandon()

	assert.True(t, b.Allow(), "an abandoned probe lets the next caller probe")
	b.Success()
	assert.True(t, b.Allow(), "and a successful probe still closes the breaker")
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	current := time.Unix(1000, 0)
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return current }

	b.Failure()
	b.Failure()
	current = current.Add(31 * time.Second)
	assert.True(t, b.Allow())
	b.Failure()

	assert.False(t, b.Allow(), "failed probe re-opens the breaker")
	current = current.Add(31 * time.Second)
	assert.True(t, b.Allow(), "and a new cooldown starts")
}
