// Package registry tracks which entities of a kind are live in memory.
// First touch runs the kind's activation hook (payment sync, expiry
// catch-up, timer rescheduling); entities idle past a TTL are evicted
// through the deactivation hook, which cancels their timers best-effort.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/souqline/entitlements/internal/clock"
	obsmetrics "github.com/souqline/entitlements/internal/observability/metrics"
	"go.uber.org/zap"
)

const DefaultIdleTTL = 20 * time.Minute

// Hooks are the lifecycle callbacks of an entity kind.
type Hooks struct {
	OnActivate   func(ctx context.Context, entityID string)
	OnDeactivate func(entityID string)
}

type Registry struct {
	kind    string
	hooks   Hooks
	idleTTL time.Duration

	mu        sync.Mutex
	lastTouch map[string]time.Time

	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.StoreMetrics
}

func New(kind string, hooks Hooks, idleTTL time.Duration, clk clock.Clock, log *zap.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		kind:      kind,
		hooks:     hooks,
		idleTTL:   idleTTL,
		lastTouch: make(map[string]time.Time),
		clock:     clk,
		log:       log.Named("registry").With(zap.String("kind", kind)),
		metrics:   obsmetrics.Store(),
	}
}

// Touch records activity for an entity, running the activation hook on
// first touch. Operations within one entity are assumed serialized by the
// caller's turn model, so a concurrent second toucher simply skips the
// hook.
func (r *Registry) Touch(ctx context.Context, entityID string) {
	r.mu.Lock()
	_, known := r.lastTouch[entityID]
	r.lastTouch[entityID] = r.clock.Now()
	r.mu.Unlock()

	if known {
		return
	}
	r.metrics.IncActivation(r.kind)
	if r.hooks.OnActivate != nil {
		r.hooks.OnActivate(ctx, entityID)
	}
}

// Remove forgets an entity without running the deactivation hook. Explicit
// deletes cancel their own timers.
func (r *Registry) Remove(entityID string) {
	r.mu.Lock()
	delete(r.lastTouch, entityID)
	r.mu.Unlock()
}

// Active reports whether the entity is currently tracked.
func (r *Registry) Active(entityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lastTouch[entityID]
	return ok
}

// SweepOnce evicts entities idle past the TTL and reports how many.
func (r *Registry) SweepOnce() int {
	cutoff := r.clock.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []string
	for id, touched := range r.lastTouch {
		if touched.Before(cutoff) {
			evicted = append(evicted, id)
			delete(r.lastTouch, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.metrics.IncDeactivation(r.kind)
		if r.hooks.OnDeactivate != nil {
			r.hooks.OnDeactivate(id)
		}
	}
	if len(evicted) > 0 {
		r.log.Debug("evicted idle entities", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// RunForever sweeps periodically until the context is cancelled.
func (r *Registry) RunForever(ctx context.Context) {
	interval := r.idleTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce()
		}
	}
}
