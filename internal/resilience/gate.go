package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultGatePermits        = 5
	DefaultGateAcquireTimeout = 500 * time.Millisecond
)

// ErrGateBusy reports that all store-access permits were held for the whole
// acquire window. Callers treat it as a store miss, not a failure.
var ErrGateBusy = errors.New("store_gate_busy")

// Gate bounds the number of in-flight durable-store operations for one
// entity kind so a stalled store cannot queue unbounded callers.
type Gate struct {
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
}

func NewGate(permits int64, acquireTimeout time.Duration) *Gate {
	if permits <= 0 {
		permits = DefaultGatePermits
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultGateAcquireTimeout
	}
	return &Gate{
		sem:            semaphore.NewWeighted(permits),
		acquireTimeout: acquireTimeout,
	}
}

// Do runs fn while holding one permit. The permit is released on every exit
// path. Returns ErrGateBusy when no permit frees up within the acquire
// window.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrGateBusy
		}
		return err
	}
	defer g.sem.Release(1)

	return fn(ctx)
}
