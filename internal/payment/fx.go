// Package payment wires the payment-backed entity kinds. Pay-to-publish
// purchases keep a backup transaction copy reconciled on activation;
// payment transactions are single-copy. Both expire on an afternoon
// local-time check, offset from the midnight subscription checks.
package payment

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
	StateKeyPayToPublish = "pay-to-publish-data"
	StateKeyBackup       = "transaction-data"
	StateKeyTransaction  = "payment-transaction-data"

	checkHour   = 15
	checkMinute = 1
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

	PayToPublish domain.Service `name:"pay_to_publish"`
	Transaction  domain.Service `name:"payment_transaction"`
}

func Provide(p Params) (Result, error) {
	payToPublish, err := service.Build(service.KindSpec{
		Kind:           "pay_to_publish",
		StateKey:       StateKeyPayToPublish,
		BackupStateKey: StateKeyBackup,
		CheckHour:      checkHour,
		CheckMinute:    checkMinute,
	}, p.Config, p.Store, p.Scheduler, p.Metrics, p.Clock, p.Logger)
	if err != nil {
		return Result{}, err
	}
	transaction, err := service.Build(service.KindSpec{
		Kind:        "payment_transaction",
		StateKey:    StateKeyTransaction,
		CheckHour:   checkHour,
		CheckMinute: checkMinute,
	}, p.Config, p.Store, p.Scheduler, p.Metrics, p.Clock, p.Logger)
	if err != nil {
		return Result{}, err
	}

	service.RunSweepers(p.Lifecycle, payToPublish, transaction)
	return Result{PayToPublish: payToPublish, Transaction: transaction}, nil
}

var Module = fx.Module("payment",
	fx.Provide(Provide),
)
