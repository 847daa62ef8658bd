// Package statecell implements the durable state cell pattern: one
// serialized record per entity id, fronted by a write-through in-process
// cache and guarded by a store-access gate and a per-kind circuit breaker.
//
// The cell never surfaces transient store faults. Writes are accepted as
// soon as the cache holds them; reads degrade to "not found" when the
// store is unreachable. Callers must treat absence as a normal outcome.
package statecell

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/souqline/entitlements/internal/cache"
	"github.com/souqline/entitlements/internal/clock"
	obsmetrics "github.com/souqline/entitlements/internal/observability/metrics"
	"github.com/souqline/entitlements/internal/resilience"
	"github.com/souqline/entitlements/internal/store"
	"go.uber.org/zap"
)

const DefaultOpTimeout = 2 * time.Second

// ErrNilRecord reports a programming error: Set called without a record.
var ErrNilRecord = errors.New("nil_record")

// Config describes one entity kind's cell.
type Config[T any] struct {
	// Kind labels logs and metrics, e.g. "subscription".
	Kind string
	// StateKey is the fixed per-kind state key name, e.g. "subscription-data".
	StateKey string
	// Touch stamps the record's lastUpdated before persisting.
	Touch func(*T, time.Time)
	// Version reads the record's lastUpdated; dual cells reconcile with it.
	Version func(*T) time.Time
	// Clone returns an independent copy of a record. When set, Get hands
	// each caller its own copy, so the cached record is never mutated
	// through a returned pointer.
	Clone func(*T) *T
	// OpTimeout bounds each store call. Defaults to DefaultOpTimeout.
	OpTimeout time.Duration
}

type Cell[T any] struct {
	cfg     Config[T]
	store   store.Store
	cache   cache.Cache[string, *T]
	gate    *resilience.Gate
	breaker *resilience.Breaker
	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.StoreMetrics
}

func New[T any](
	cfg Config[T],
	st store.Store,
	gate *resilience.Gate,
	breaker *resilience.Breaker,
	clk clock.Clock,
	log *zap.Logger,
) *Cell[T] {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	return &Cell[T]{
		cfg:     cfg,
		store:   st,
		cache:   cache.NewTTLCache[string, *T](),
		gate:    gate,
		breaker: breaker,
		clock:   clk,
		log:     log.Named("statecell").With(zap.String("kind", cfg.Kind)),
		metrics: obsmetrics.Store(),
	}
}

// Set stores the record. The cache write always happens and the call is
// reported accepted even when the durable write is skipped or fails; the
// durable side is best-effort under the kind's degradation policy.
func (c *Cell[T]) Set(ctx context.Context, id string, rec *T) error {
	if rec == nil {
		return ErrNilRecord
	}
	if c.cfg.Touch != nil {
		c.cfg.Touch(rec, c.clock.Now())
	}
	c.cache.Set(id, rec, 0)

	c.persist(ctx, c.storeKey(id), rec)
	return nil
}

// Get returns the cached record, or loads it from the store when the
// breaker allows. A false return means not found, covering both an
// authoritative miss and a degraded one; callers cannot tell the two
// apart.
func (c *Cell[T]) Get(ctx context.Context, id string) (*T, bool) {
	if rec, ok := c.cache.Get(id); ok {
		return c.copyOf(rec), true
	}

	if !c.breaker.Allow() {
		c.metrics.IncStoreOp(c.cfg.Kind, "get", obsmetrics.StoreOutcomeBreakerOpen)
		c.metrics.SetBreakerOpen(c.cfg.Kind, true)
		return nil, false
	}
	c.metrics.SetBreakerOpen(c.cfg.Kind, false)

	var loaded *T
	err := c.gate.Do(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
		defer cancel()

		value, ok, err := c.store.Get(opCtx, c.storeKey(id))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rec := new(T)
		if err := unmarshalRecord(value, rec); err != nil {
			return err
		}
		loaded = rec
		return nil
	})
	if err != nil {
		c.degrade(id, "get", err)
		return nil, false
	}
	if loaded == nil {
		c.metrics.IncStoreOp(c.cfg.Kind, "get", obsmetrics.StoreOutcomeMiss)
		return nil, false
	}

	c.cache.Set(id, loaded, 0)
	c.metrics.IncStoreOp(c.cfg.Kind, "get", obsmetrics.StoreOutcomeOK)
	return c.copyOf(loaded), true
}

func (c *Cell[T]) copyOf(rec *T) *T {
	if c.cfg.Clone == nil {
		return rec
	}
	return c.cfg.Clone(rec)
}

// Delete removes the cached copy and best-effort deletes the durable one.
func (c *Cell[T]) Delete(ctx context.Context, id string) {
	c.cache.Delete(id)
	c.remove(ctx, c.storeKey(id))
}

// Cached reports whether the id is currently held in the cache.
func (c *Cell[T]) Cached(id string) bool {
	_, ok := c.cache.Get(id)
	return ok
}

// Forget drops the cache entry without touching the store.
func (c *Cell[T]) Forget(id string) {
	c.cache.Delete(id)
}

func (c *Cell[T]) persist(ctx context.Context, key string, rec *T) {
	if !c.breaker.Allow() {
		c.metrics.IncStoreOp(c.cfg.Kind, "set", obsmetrics.StoreOutcomeBreakerOpen)
		c.metrics.SetBreakerOpen(c.cfg.Kind, true)
		return
	}
	c.metrics.SetBreakerOpen(c.cfg.Kind, false)

	value, err := json.Marshal(rec)
	if err != nil {
		c.log.Error("marshal state record", zap.Error(err))
		return
	}

	err = c.gate.Do(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
		defer cancel()
		return c.store.Set(opCtx, key, value)
	})
	if err != nil {
		c.degrade(key, "set", err)
		return
	}
	c.metrics.IncStoreOp(c.cfg.Kind, "set", obsmetrics.StoreOutcomeOK)
}

func (c *Cell[T]) remove(ctx context.Context, key string) {
	err := c.gate.Do(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
		defer cancel()
		return c.store.Delete(opCtx, key)
	})
	if err != nil {
		c.degrade(key, "delete", err)
		return
	}
	c.metrics.IncStoreOp(c.cfg.Kind, "delete", obsmetrics.StoreOutcomeOK)
}

func (c *Cell[T]) degrade(key, op string, err error) {
	if errors.Is(err, resilience.ErrGateBusy) {
		c.metrics.IncStoreOp(c.cfg.Kind, op, obsmetrics.StoreOutcomeGateBusy)
		c.log.Warn("store gate busy, degrading to cache-only",
			zap.String("op", op),
			zap.String("key", key),
		)
		return
	}
	if c.breaker.Trip(err) {
		c.metrics.IncBreakerTrip(c.cfg.Kind)
		c.metrics.SetBreakerOpen(c.cfg.Kind, true)
	}
	c.metrics.IncStoreOp(c.cfg.Kind, op, obsmetrics.StoreOutcomeError)
	c.log.Warn("store operation failed, degrading to cache-only",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func (c *Cell[T]) storeKey(id string) string {
	return c.cfg.StateKey + ":" + id
}

func unmarshalRecord[T any](value []byte, rec *T) error {
	return json.Unmarshal(value, rec)
}
