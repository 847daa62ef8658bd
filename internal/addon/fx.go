// Package addon wires the addon-payment entity kind: one-off quota
// top-ups bought alongside a subscription, expired by the same midnight
// local-time check.
package addon

import (
	"github.com/souqline/entitlements/internal/clock"
	appconfig "github.com/souqline/entitlements/internal/config"
	"github.com/souqline/entitlements/internal/entitlement/domain"
	"github.com/souqline/entitlements/internal/entitlement/service"
	"github.com/souqline/entitlements/internal/expiry"
	obsmetrics "github.com/souqline/entitlements/internal/observability/metrics"
	"github.com/souqline/entitlements/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const StateKey = "addon-payment-data"

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    appconfig.Config
	Store     store.Store
	Scheduler *expiry.Scheduler
	Metrics   *obsmetrics.Metrics
	Clock     clock.Clock
	Logger    *zap.Logger
}

type Result struct {
	fx.Out

	Service domain.Service `name:"addon"`
}

func Provide(p Params) (Result, error) {
	svc, err := service.Build(service.KindSpec{
		Kind:     "addon",
		StateKey: StateKey,
	}, p.Config, p.Store, p.Scheduler, p.Metrics, p.Clock, p.Logger)
	if err != nil {
		return Result{}, err
	}

	service.RunSweepers(p.Lifecycle, svc)
	return Result{Service: svc}, nil
}

var Module = fx.Module("addon",
	fx.Provide(Provide),
)
