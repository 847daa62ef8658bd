package statecell

import (
	"context"

	"github.com/souqline/entitlements/internal/clock"
	"github.com/souqline/entitlements/internal/resilience"
	"github.com/souqline/entitlements/internal/store"
	"go.uber.org/zap"
)

// DualCell keeps a primary and a backup copy of the same logical record
// under two fixed store keys, tolerating the store losing either one. The
// two writes are not atomic; Sync reconciles divergence by lastUpdated,
// newer copy winning. Sync runs on every entity activation.
type DualCell[T any] struct {
	*Cell[T]
	backupKey string
}

func NewDual[T any](
	cfg Config[T],
	backupKey string,
	st store.Store,
	gate *resilience.Gate,
	breaker *resilience.Breaker,
	clk clock.Clock,
	log *zap.Logger,
) *DualCell[T] {
	return &DualCell[T]{
		Cell:      New(cfg, st, gate, breaker, clk, log),
		backupKey: backupKey,
	}
}

// Set behaves like Cell.Set but persists to both copies.
func (d *DualCell[T]) Set(ctx context.Context, id string, rec *T) error {
	if rec == nil {
		return ErrNilRecord
	}
	if d.cfg.Touch != nil {
		d.cfg.Touch(rec, d.clock.Now())
	}
	d.cache.Set(id, rec, 0)

	d.persist(ctx, d.storeKey(id), rec)
	d.persist(ctx, d.backupStoreKey(id), rec)
	return nil
}

// Delete removes the cache entry and both durable copies.
func (d *DualCell[T]) Delete(ctx context.Context, id string) {
	d.cache.Delete(id)
	d.remove(ctx, d.storeKey(id))
	d.remove(ctx, d.backupStoreKey(id))
}

// Sync reconciles the primary and backup copies: the side with the newer
// lastUpdated overwrites the other, and a missing side is restored from
// the surviving one. Best-effort; store faults degrade silently.
func (d *DualCell[T]) Sync(ctx context.Context, id string) {
	primary, primaryOK := d.load(ctx, d.storeKey(id))
	backup, backupOK := d.load(ctx, d.backupStoreKey(id))

	switch {
	case !primaryOK && !backupOK:
		return
	case primaryOK && !backupOK:
		d.persist(ctx, d.backupStoreKey(id), primary)
		d.cache.Set(id, primary, 0)
	case !primaryOK && backupOK:
		d.persist(ctx, d.storeKey(id), backup)
		d.cache.Set(id, backup, 0)
	default:
		if d.cfg.Version == nil {
			d.cache.Set(id, primary, 0)
			return
		}
		if d.cfg.Version(backup).After(d.cfg.Version(primary)) {
			d.persist(ctx, d.storeKey(id), backup)
			d.cache.Set(id, backup, 0)
			return
		}
		if d.cfg.Version(primary).After(d.cfg.Version(backup)) {
			d.persist(ctx, d.backupStoreKey(id), primary)
		}
		d.cache.Set(id, primary, 0)
	}
}

func (d *DualCell[T]) load(ctx context.Context, key string) (*T, bool) {
	if !d.breaker.Allow() {
		return nil, false
	}

	var loaded *T
	err := d.gate.Do(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, d.cfg.OpTimeout)
		defer cancel()

		value, ok, err := d.store.Get(opCtx, key)
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
		d.degrade(key, "sync", err)
		return nil, false
	}
	return loaded, loaded != nil
}

func (d *DualCell[T]) backupStoreKey(id string) string {
	return d.backupKey + ":" + id
}
