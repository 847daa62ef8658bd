package userquota

import (
	"github.com/souqline/entitlements/internal/clock"
	appconfig "github.com/souqline/entitlements/internal/config"
	"github.com/souqline/entitlements/internal/resilience"
	"github.com/souqline/entitlements/internal/statecell"
	"github.com/souqline/entitlements/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config appconfig.Config
	Store  store.Store
	Clock  clock.Clock
	Logger *zap.Logger
}

func Provide(p Params) *Service {
	gate := resilience.NewGate(int64(p.Config.StoreGatePermits), p.Config.StoreGateAcquireTimeout)
	breaker := resilience.NewBreaker(p.Config.BreakerCooldown, p.Clock)
	cell := statecell.New(statecell.Config[Collection]{
		Kind:      "user_quota",
		StateKey:  StateKey,
		Touch:     (*Collection).touch,
		Version:   (*Collection).version,
		Clone:     (*Collection).Clone,
		OpTimeout: p.Config.StoreOpTimeout,
	}, p.Store, gate, breaker, p.Clock, p.Logger)

	return New(cell, p.Clock, p.Logger)
}

var Module = fx.Module("userquota",
	fx.Provide(Provide),
)
