package main

import (
	"github.com/souqline/entitlements/internal/addon"
	"github.com/souqline/entitlements/internal/clock"
	"github.com/souqline/entitlements/internal/config"
	"github.com/souqline/entitlements/internal/expiry"
	"github.com/souqline/entitlements/internal/logger"
	"github.com/souqline/entitlements/internal/observability"
	"github.com/souqline/entitlements/internal/payment"
	"github.com/souqline/entitlements/internal/server"
	"github.com/souqline/entitlements/internal/store"
	"github.com/souqline/entitlements/internal/subscription"
	"github.com/souqline/entitlements/internal/userquota"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		observability.Module,
		store.Module,
		expiry.Module,

		// Entity kinds
		subscription.Module,
		addon.Module,
		payment.Module,
		userquota.Module,

		// HTTP surface
		server.Module,
	)
	app.Run()
}
