// Package expiry drives entities to their expired state promptly after
// their end date without requiring read traffic. Every live entity holds a
// recurring daily check at its kind's fixed wall-clock time plus, when the
// end date lands before the next daily fire, a one-shot check shortly
// after the end date itself.
package expiry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/souqline/entitlements/internal/clock"
	obsmetrics "github.com/souqline/entitlements/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	// OneShotBuffer delays the one-shot check slightly past the end date so
	// the entity is unambiguously expired when the check reloads it.
	OneShotBuffer = 2 * time.Minute

	DefaultTick = 30 * time.Second
)

// CheckFunc reloads the entity and performs the expiry transition. It is
// supplied by the entity-kind service when registering timers.
type CheckFunc func(ctx context.Context, entityID string)

type entry struct {
	name     string
	kind     string
	entityID string
	due      time.Time
	daily    bool
	schedule Schedule
	check    CheckFunc
	index    int
}

type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	queue   entryQueue

	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.StoreMetrics
	tick    time.Duration
}

func NewScheduler(clk clock.Clock, log *zap.Logger, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		clock:   clk,
		log:     log.Named("expiry"),
		metrics: obsmetrics.Store(),
		tick:    tick,
	}
}

// RegisterDaily (re)arms the recurring daily check for an entity. Calling
// it again replaces the previous registration.
func (s *Scheduler) RegisterDaily(kind, entityID string, schedule Schedule, check CheckFunc) {
	now := s.clock.Now()
	s.register(&entry{
		name:     timerName(kind, entityID, obsmetrics.TimerKindDaily),
		kind:     kind,
		entityID: entityID,
		due:      schedule.Next(now),
		daily:    true,
		schedule: schedule,
		check:    check,
	})
}

// RegisterOneShot (re)arms the specific end-date check for an entity.
func (s *Scheduler) RegisterOneShot(kind, entityID string, due time.Time, check CheckFunc) {
	now := s.clock.Now()
	if !due.After(now) {
		// Never schedule in the past; the activation catch-up path handles
		// already-elapsed end dates.
		due = now.Add(OneShotBuffer)
	}
	s.register(&entry{
		name:     timerName(kind, entityID, obsmetrics.TimerKindOneShot),
		kind:     kind,
		entityID: entityID,
		due:      due,
		check:    check,
	})
}

// Unregister cancels both of an entity's timers. Unknown names are a
// no-op, matching the timer facility contract.
func (s *Scheduler) Unregister(kind, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(timerName(kind, entityID, obsmetrics.TimerKindDaily))
	s.removeLocked(timerName(kind, entityID, obsmetrics.TimerKindOneShot))
	s.metrics.SetTimersActive(len(s.entries))
}

// UnregisterOneShot cancels only the one-shot timer, keeping the daily one.
func (s *Scheduler) UnregisterOneShot(kind, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(timerName(kind, entityID, obsmetrics.TimerKindOneShot))
	s.metrics.SetTimersActive(len(s.entries))
}

// ActiveTimers reports how many timers an entity currently holds.
func (s *Scheduler) ActiveTimers(kind, entityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	if _, ok := s.entries[timerName(kind, entityID, obsmetrics.TimerKindDaily)]; ok {
		count++
	}
	if _, ok := s.entries[timerName(kind, entityID, obsmetrics.TimerKindOneShot)]; ok {
		count++
	}
	return count
}

// Len reports the total number of registered timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunOnce fires every due timer and reports how many fired. Daily timers
// re-arm themselves unless the check unregistered them; one-shots do not.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*entry
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.due.After(now) {
			break
		}
		heap.Pop(&s.queue)
		if !next.daily {
			delete(s.entries, next.name)
		}
		due = append(due, next)
	}
	s.mu.Unlock()

	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		timerKind := obsmetrics.TimerKindOneShot
		if e.daily {
			timerKind = obsmetrics.TimerKindDaily
		}
		s.metrics.IncTimerFired(e.kind, timerKind)
		e.check(ctx, e.entityID)
	}

	s.mu.Lock()
	for _, e := range due {
		if !e.daily {
			continue
		}
		// Re-arm unless the check cancelled the timer.
		if current, ok := s.entries[e.name]; ok && current == e {
			e.due = e.schedule.Next(s.clock.Now())
			heap.Push(&s.queue, e)
		}
	}
	s.metrics.SetTimersActive(len(s.entries))
	s.mu.Unlock()

	return len(due)
}

// RunForever ticks until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.log.Info("expiry scheduler started", zap.Duration("tick", s.tick))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) register(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(e.name)
	s.entries[e.name] = e
	heap.Push(&s.queue, e)
	s.metrics.SetTimersActive(len(s.entries))
}

func (s *Scheduler) removeLocked(name string) {
	e, ok := s.entries[name]
	if !ok {
		return
	}
	delete(s.entries, name)
	if e.index >= 0 && e.index < s.queue.Len() && s.queue[e.index] == e {
		heap.Remove(&s.queue, e.index)
	}
}

func timerName(kind, entityID, timer string) string {
	return kind + "/" + entityID + "/" + timer
}
