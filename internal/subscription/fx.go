// Package subscription wires the two subscription entity kinds: the
// legacy v1 layout and the v2 layout, stored under separate state keys
// and expired by a midnight local-time check.
package subscription

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

const (
	StateKeyV1 = "subscription-data"
	StateKeyV2 = "v2-subscription-data"
)

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

	V1 domain.Service `name:"subscription"`
	V2 domain.Service `name:"subscription_v2"`
}

func Provide(p Params) (Result, error) {
	v1, err := service.Build(service.KindSpec{
		Kind:     "subscription",
		StateKey: StateKeyV1,
	}, p.Config, p.Store, p.Scheduler, p.Metrics, p.Clock, p.Logger)
	if err != nil {
		return Result{}, err
	}
	v2, err := service.Build(service.KindSpec{
		Kind:     "subscription_v2",
		StateKey: StateKeyV2,
	}, p.Config, p.Store, p.Scheduler, p.Metrics, p.Clock, p.Logger)
	if err != nil {
		return Result{}, err
	}

	service.RunSweepers(p.Lifecycle, v1, v2)
	return Result{V1: v1, V2: v2}, nil
}

var Module = fx.Module("subscription",
	fx.Provide(Provide),
)
