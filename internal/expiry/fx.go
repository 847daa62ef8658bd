package expiry

import (
	"context"

	"github.com/souqline/entitlements/internal/clock"
	appconfig "github.com/souqline/entitlements/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Provide(cfg appconfig.Config, clk clock.Clock, log *zap.Logger) *Scheduler {
	return NewScheduler(clk, log, cfg.ExpiryTick)
}

func run(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

var Module = fx.Module("expiry",
	fx.Provide(Provide),
	fx.Invoke(run),
)
