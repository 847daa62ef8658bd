package service

import (
	"context"
	"fmt"
	"time"

	"github.com/souqline/entitlements/internal/clock"
	"github.com/souqline/entitlements/internal/config"
	"github.com/souqline/entitlements/internal/entitlement/domain"
	"github.com/souqline/entitlements/internal/expiry"
	obsmetrics "github.com/souqline/entitlements/internal/observability/metrics"
	"github.com/souqline/entitlements/internal/resilience"
	"github.com/souqline/entitlements/internal/statecell"
	"github.com/souqline/entitlements/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// KindSpec declares one entity kind: its state key layout and the local
// wall-clock time of its daily expiry check.
type KindSpec struct {
	Kind     string
	StateKey string
	// BackupStateKey, when set, gives the kind a second durable copy
	// reconciled on activation.
	BackupStateKey string
	CheckHour      int
	CheckMinute    int
}

// Build assembles a kind service from app config: its own gate and
// breaker, a cell (dual when a backup key is declared), and the shared
// expiry scheduler.
func Build(
	spec KindSpec,
	cfg config.Config,
	st store.Store,
	sched *expiry.Scheduler,
	app *obsmetrics.Metrics,
	clk clock.Clock,
	log *zap.Logger,
) (*Service, error) {
	loc, err := time.LoadLocation(cfg.ExpiryZone)
	if err != nil {
		return nil, fmt.Errorf("load expiry zone %q: %w", cfg.ExpiryZone, err)
	}

	gate := resilience.NewGate(int64(cfg.StoreGatePermits), cfg.StoreGateAcquireTimeout)
	breaker := resilience.NewBreaker(cfg.BreakerCooldown, clk)
	cellCfg := statecell.Config[domain.Record]{
		Kind:      spec.Kind,
		StateKey:  spec.StateKey,
		Touch:     (*domain.Record).Touch,
		Version:   (*domain.Record).Version,
		Clone:     (*domain.Record).Clone,
		OpTimeout: cfg.StoreOpTimeout,
	}

	var cell RecordCell
	if spec.BackupStateKey != "" {
		cell = statecell.NewDual(cellCfg, spec.BackupStateKey, st, gate, breaker, clk, log)
	} else {
		cell = statecell.New(cellCfg, st, gate, breaker, clk, log)
	}

	return New(Config{
		Kind:    spec.Kind,
		Check:   expiry.Schedule{Hour: spec.CheckHour, Minute: spec.CheckMinute, Location: loc},
		IdleTTL: cfg.RegistryIdle,
	}, cell, sched, app, clk, log), nil
}

// RunSweepers runs the services' idle-eviction sweepers for the life of
// the fx app.
func RunSweepers(lc fx.Lifecycle, svcs ...*Service) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for _, s := range svcs {
				go s.reg.RunForever(ctx)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
