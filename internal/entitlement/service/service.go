// Package service implements the per-kind entitlement service: a state
// cell for persistence, the quota ledger for usage accounting, expiry
// timers for lifecycle transitions, and an activity registry for
// activation and idle eviction.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/souqline/entitlements/internal/clock"
	"github.com/souqline/entitlements/internal/entitlement/domain"
	"github.com/souqline/entitlements/internal/entitlement/ledger"
	"github.com/souqline/entitlements/internal/expiry"
	"github.com/souqline/entitlements/internal/keylock"
	obsmetrics "github.com/souqline/entitlements/internal/observability/metrics"
	"github.com/souqline/entitlements/internal/registry"
	"go.uber.org/zap"
)

// RecordCell is the persistence surface the service needs. Both
// statecell.Cell[domain.Record] and statecell.DualCell[domain.Record]
// satisfy it.
type RecordCell interface {
	Set(ctx context.Context, id string, rec *domain.Record) error
	Get(ctx context.Context, id string) (*domain.Record, bool)
	Delete(ctx context.Context, id string)
}

// backupSyncer is implemented by dual cells; kinds without a backup copy
// skip reconciliation on activation.
type backupSyncer interface {
	Sync(ctx context.Context, id string)
}

// Config fixes the kind-specific knobs.
type Config struct {
	// Kind labels timers, logs, and metrics, e.g. "subscription".
	Kind string
	// Check is the kind's daily wall-clock expiry check.
	Check expiry.Schedule
	// IdleTTL evicts entities with no traffic for this long.
	IdleTTL time.Duration
}

type Service struct {
	cfg   Config
	cell  RecordCell
	sched *expiry.Scheduler
	reg   *registry.Registry
	locks *keylock.Striped

	clock clock.Clock
	log   *zap.Logger
	app   *obsmetrics.Metrics
	prom  *obsmetrics.StoreMetrics
}

var _ domain.Service = (*Service)(nil)

func New(
	cfg Config,
	cell RecordCell,
	sched *expiry.Scheduler,
	app *obsmetrics.Metrics,
	clk clock.Clock,
	log *zap.Logger,
) *Service {
	s := &Service{
		cfg:   cfg,
		cell:  cell,
		sched: sched,
		locks: keylock.New(),
		clock: clk,
		log:   log.Named("service").With(zap.String("kind", cfg.Kind)),
		app:   app,
		prom:  obsmetrics.Store(),
	}
	s.reg = registry.New(cfg.Kind, registry.Hooks{
		OnActivate:   s.onActivate,
		OnDeactivate: s.onDeactivate,
	}, cfg.IdleTTL, clk, log)
	return s
}

// Registry exposes the activity registry so the app can run its idle
// sweeper under the fx lifecycle.
func (s *Service) Registry() *registry.Registry { return s.reg }

// Get loads the entity record. Absence reads as domain.ErrNotFound
// whether the record never existed or the store is degraded.
func (s *Service) Get(ctx context.Context, id string) (*domain.Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	s.reg.Touch(ctx, id)

	rec, ok := s.cell.Get(ctx, id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// Set stores the record and re-arms the entity's expiry timers to match
// its new validity window. An entity that already expired stays expired:
// the flag is carried forward onto the incoming record rather than
// trusting the caller to preserve it.
func (s *Service) Set(ctx context.Context, id string, rec *domain.Record) error {
	if err := validateID(id); err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNilRecord
	}
	if !rec.EndDate.After(rec.StartDate) {
		return domain.ErrInvalidWindow
	}
	rec.ID = id

	unlock := s.locks.Lock(id)
	defer unlock()
	s.reg.Touch(ctx, id)

	if cur, ok := s.cell.Get(ctx, id); ok && cur.IsExpired {
		rec.IsExpired = true
		rec.Status = domain.StatusExpired
	}
	if err := s.cell.Set(ctx, id, rec); err != nil {
		return err
	}

	if rec.IsExpired {
		s.sched.Unregister(s.cfg.Kind, id)
		return nil
	}
	s.scheduleTimers(id, rec)
	return nil
}

// Delete removes the record, its timers, and its registry slot.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	s.cell.Delete(ctx, id)
	s.sched.Unregister(s.cfg.Kind, id)
	s.reg.Remove(id)
	return nil
}

// ValidateUsage checks coverage without consuming.
func (s *Service) ValidateUsage(ctx context.Context, id, action string, amount float64) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	if amount <= 0 {
		return false, domain.ErrInvalidAmount
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	s.reg.Touch(ctx, id)

	rec, ok := s.cell.Get(ctx, id)
	if !ok {
		return false, domain.ErrNotFound
	}
	return ledger.Validate(rec, domain.NormalizeAction(action), amount, s.clock.Now()), nil
}

// RecordUsage validates and decrements in one turn: the entity lock is
// held from the read through the write-back, so two concurrent calls
// cannot both spend the same remaining budget.
func (s *Service) RecordUsage(ctx context.Context, id, action string, amount float64) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	if amount <= 0 {
		return false, domain.ErrInvalidAmount
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	s.reg.Touch(ctx, id)

	rec, ok := s.cell.Get(ctx, id)
	if !ok {
		return false, domain.ErrNotFound
	}

	canonical := domain.NormalizeAction(action)
	if !ledger.Apply(rec, canonical, amount, s.clock.Now()) {
		s.app.RecordQuotaDenied(ctx, s.cfg.Kind, string(canonical))
		s.prom.IncQuotaDenial(s.cfg.Kind, string(canonical))
		return false, nil
	}

	if err := s.cell.Set(ctx, id, rec); err != nil {
		return false, err
	}
	s.app.RecordQuotaConsumed(ctx, s.cfg.Kind, string(canonical), int64(domain.CeilAmount(amount)))
	return true, nil
}

// onActivate runs on first touch, inside the caller's entity lock:
// reconcile the backup copy when the kind keeps one, then catch up on
// any expiry the entity slept through and arm its timers.
func (s *Service) onActivate(ctx context.Context, id string) {
	if syncer, ok := s.cell.(backupSyncer); ok {
		syncer.Sync(ctx, id)
	}

	rec, ok := s.cell.Get(ctx, id)
	if !ok || rec.IsExpired {
		return
	}
	if !rec.EndDate.After(s.clock.Now()) {
		s.expire(ctx, id, rec)
		return
	}
	s.scheduleTimers(id, rec)
}

// onDeactivate cancels the entity's timers. The cached record stays so a
// later touch serves warm; activation re-arms the timers.
func (s *Service) onDeactivate(id string) {
	s.sched.Unregister(s.cfg.Kind, id)
}

// scheduleTimers arms the daily check, plus a one-shot slightly past the
// end date when it lands before the next daily fire.
func (s *Service) scheduleTimers(id string, rec *domain.Record) {
	s.sched.RegisterDaily(s.cfg.Kind, id, s.cfg.Check, s.checkExpiry)
	if rec.EndDate.Before(s.cfg.Check.Next(s.clock.Now())) {
		s.sched.RegisterOneShot(s.cfg.Kind, id, rec.EndDate.Add(expiry.OneShotBuffer), s.checkExpiry)
	}
}

// checkExpiry is the timer callback: reload the entity and flip it to
// expired once past its end date. It runs on the scheduler goroutine, so
// it takes the entity lock itself.
func (s *Service) checkExpiry(ctx context.Context, id string) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, ok := s.cell.Get(ctx, id)
	if !ok || rec.IsExpired {
		s.sched.Unregister(s.cfg.Kind, id)
		return
	}
	if !rec.EndDate.After(s.clock.Now()) {
		s.expire(ctx, id, rec)
		return
	}
	// Still live: keep the daily check and make sure the end-date shot is
	// armed when it falls inside the next day.
	if rec.EndDate.Before(s.cfg.Check.Next(s.clock.Now())) {
		s.sched.RegisterOneShot(s.cfg.Kind, id, rec.EndDate.Add(expiry.OneShotBuffer), s.checkExpiry)
	}
}

func (s *Service) expire(ctx context.Context, id string, rec *domain.Record) {
	rec.IsExpired = true
	rec.Status = domain.StatusExpired
	if err := s.cell.Set(ctx, id, rec); err != nil {
		s.log.Error("persist expiry transition", zap.String("entity_id", id), zap.Error(err))
	}
	s.sched.Unregister(s.cfg.Kind, id)
	s.app.RecordExpiry(ctx, s.cfg.Kind)
	s.log.Info("entity expired",
		zap.String("entity_id", id),
		zap.Time("end_date", rec.EndDate),
	)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrInvalidID
	}
	return nil
}
