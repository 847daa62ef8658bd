// Package resilience holds the shared degradation machinery in front of the
// durable store: a per-kind circuit breaker and a bounded concurrency gate.
package resilience

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/souqline/entitlements/internal/clock"
)

const DefaultCooldown = time.Minute

// Breaker suppresses store calls for a cooldown window after a transient
// failure. It is shared by every entity of a kind, not per-entity: one slow
// store call flips the whole kind to cache-only until the window elapses.
// There is no half-open probe; once the cooldown has passed the next caller
// simply tries the store again.
type Breaker struct {
	cooldown time.Duration
	clock    clock.Clock

	// unix nanos of the last transient failure; zero means closed.
	failedAt atomic.Int64
}

func NewBreaker(cooldown time.Duration, clk clock.Clock) *Breaker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Breaker{cooldown: cooldown, clock: clk}
}

// Allow reports whether a store call may be attempted.
func (b *Breaker) Allow() bool {
	failedAt := b.failedAt.Load()
	if failedAt == 0 {
		return true
	}
	return b.clock.Now().UnixNano()-failedAt >= int64(b.cooldown)
}

// Trip records a failure instant when err is transient. Non-transient
// errors leave the breaker alone. Reports whether the breaker tripped.
func (b *Breaker) Trip(err error) bool {
	if !IsTransient(err) {
		return false
	}
	b.failedAt.Store(b.clock.Now().UnixNano())
	return true
}

// Open reports whether the breaker currently suppresses store calls.
func (b *Breaker) Open() bool { return !b.Allow() }

// IsTransient classifies timeout/cancellation/socket-level errors, the
// failure modes that indicate the store itself is struggling.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	return false
}
